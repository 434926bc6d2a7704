package ingest

import (
	"context"

	"student-bulk-import/internal/db"
	"student-bulk-import/internal/excel"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"

	"github.com/rs/zerolog"
)

// Pipeline runs a single row through validate -> register -> upsert.
type Pipeline struct {
	strategy  excel.ParsingStrategy
	registrar *Registrar
	upserter  *UpsertEngine
	log       zerolog.Logger
}

func NewPipeline(repo db.Repository) *Pipeline {
	return &Pipeline{
		strategy:  excel.NewExcelStrategy(),
		registrar: NewRegistrar(repo),
		upserter:  NewUpsertEngine(repo),
		log:       logger.For("pipeline"),
	}
}

func (p *Pipeline) Process(ctx context.Context, job model.StudentJob) (UpsertResult, error) {
	log := p.log.With().
		Str("batch_id", job.RequestID).
		Int("row_number", job.RowNumber).
		Logger()

	row, err := p.strategy.ValidateRow(job.StudentRow)
	if err != nil {
		log.Debug().Err(err).Msg("Row failed validation")
		return "", err
	}

	if err := p.registrar.EnsureRowEntries(ctx, row); err != nil {
		log.Error().Err(err).Msg("Failed to register upload entries")
		return "", err
	}

	result, err := p.upserter.Upsert(ctx, model.StudentFromRow(row))
	if err != nil {
		log.Debug().Err(err).Msg("Row upsert failed")
		return "", err
	}

	log.Debug().Str("roll_no", row.RollNo).Str("result", string(result)).Msg("Row processed")
	return result, nil
}
