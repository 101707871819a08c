package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/zetlen/csvstream/internal/source"
	"github.com/zetlen/csvstream/internal/stream"
	"github.com/zetlen/csvstream/internal/validate"
)

// completeTimeout bounds the final storage writes of an ingest, which run on
// a fresh context because the ingest context may already be cancelled.
const completeTimeout = 30 * time.Second

// StartIngest begins an asynchronous ingest of r into the named dataset and
// returns its ID immediately. Use SubscribeProgress for updates and Result
// for the outcome. StartIngest blocks up to the configured wait time for a
// concurrency slot and returns ErrTooManyIngests when none frees up.
//
// The reader is consumed on a background goroutine; it must stay readable
// until the ingest finishes.
func (s *Service) StartIngest(ctx context.Context, datasetKey, fileName string, r io.Reader, opts IngestOptions) (uuid.UUID, error) {
	ds, ok := GetDataset(datasetKey)
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown dataset: %s", datasetKey)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	ingestCtx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)

	ing := &activeIngest{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
		progress: IngestProgress{
			ID:         id,
			DatasetKey: datasetKey,
			FileName:   fileName,
			Phase:      PhaseStarting,
			BytesTotal: opts.TotalBytes,
		},
	}

	if err := s.store.CreateIngest(ctx, id, datasetKey, fileName, time.Now()); err != nil {
		cancel()
		s.limiter.Release()
		return uuid.Nil, fmt.Errorf("create ingest: %w", err)
	}

	s.mu.Lock()
	s.ingests[id] = ing
	s.mu.Unlock()

	go s.run(ingestCtx, ing, ds, r, opts)

	return id, nil
}

// run drives one ingest to completion on its own goroutine.
func (s *Service) run(ctx context.Context, ing *activeIngest, ds Dataset, r io.Reader, opts IngestOptions) {
	defer s.limiter.Release()
	defer ing.cancel()

	start := time.Now()
	log := s.log.With("ingest", ing.id, "dataset", ds.Key)
	log.Info("ingest started", "file", ing.snapshot().FileName)

	var (
		stored int
		runErr error
	)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("ingest panicked", "panic", rec)
			runErr = fmt.Errorf("internal error: %v", rec)
		}
		s.finish(ing, ds, start, stored, runErr)
	}()

	stored, runErr = s.pipe(ctx, ing, ds, r, opts)
}

// pipe wires reader, parser, validation and storage together and pumps the
// input through. It returns the stored-row count and the first error that
// stopped the stream; terminal parse errors surface through the parser.
func (s *Service) pipe(ctx context.Context, ing *activeIngest, ds Dataset, r io.Reader, opts IngestOptions) (int, error) {
	reader := io.Reader(r)
	if ds.NoHeader {
		// Fixed-header and positional parsing never normalize a header row,
		// so a BOM would otherwise leak into the first data field.
		reader = source.SkipBOM(reader)
	}
	counted := source.NewCountingReader(source.NewSanitizingReader(reader), opts.TotalBytes)

	mode := stream.CaptureHeader()
	switch {
	case ds.NoHeader && len(ds.Columns) > 0:
		mode = stream.FixedHeaders(ds.Columns)
	case ds.NoHeader:
		mode = stream.NumericKeys()
	case len(ds.Columns) > 0:
		mode = stream.ValidateHeader(ds.Columns)
	}

	// Batching and rejection state is only touched from the parser's
	// callbacks, which all run on this goroutine.
	var (
		batch    = make([]StoredRow, 0, s.opts.BatchSize)
		failed   []FailedRow
		rejected bool
		stored   int
		invalid  int
	)

	var checkRow func(*stream.Record) []string
	if len(ds.Specs) > 0 {
		checkRow = validate.Validator(ds.Specs)
	}

	cfg := stream.Config{
		Delimiter:        opts.Delimiter,
		Header:           mode,
		StrictColumns:    opts.StrictColumns,
		ProgressInterval: s.opts.ProgressInterval,
		TotalBytes:       opts.TotalBytes,
		Validate: func(rec *stream.Record) []string {
			if checkRow == nil {
				return nil
			}
			errs := checkRow(rec)
			if len(errs) > 0 {
				rejected = true
				invalid++
				failed = append(failed, FailedRow{Line: rec.Line, Reasons: errs, Fields: rec.Fields})
			}
			return errs
		},
		Sink: func(ctx context.Context, rec *stream.Record) error {
			if rejected {
				rejected = false
				if len(failed) >= s.opts.BatchSize {
					if err := s.store.AppendFailedRows(ctx, ing.id, failed); err != nil {
						return fmt.Errorf("store failed rows: %w", err)
					}
					failed = failed[:0]
				}
				return nil
			}
			batch = append(batch, StoredRow{Line: rec.Line, Values: rec.Values})
			stored++
			if len(batch) >= s.opts.BatchSize {
				if err := s.store.AppendRows(ctx, ing.id, batch); err != nil {
					return fmt.Errorf("store rows: %w", err)
				}
				batch = batch[:0]
			}
			return nil
		},
	}

	parser, err := stream.New(cfg)
	if err != nil {
		return 0, err
	}

	parser.Subscribe(stream.Listener{
		OnHeaders: func(ev stream.HeadersResolved) {
			ing.update(func(p *IngestProgress) {
				p.Phase = PhaseParsing
				p.Headers = ev.Headers
			})
		},
		OnProgress: func(ev stream.Progress) {
			ing.update(func(p *IngestProgress) {
				p.Phase = PhaseParsing
				p.Rows = ev.Row
				p.Lines = ev.Line
				p.Invalid = invalid
				p.BytesRead = ev.Bytes
			})
		},
	})

	pumpErr := source.Pump(ctx, counted, parser, s.opts.FragmentSize)
	if pumpErr == nil {
		pumpErr = parser.Err()
	}

	// Flush what remains on a fresh bounded context; the ingest context is
	// dead after cancellation or timeout. Rows already written before a
	// terminal parse error stay stored, consistent with the earlier batches.
	flushCtx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	if len(batch) > 0 {
		if err := s.store.AppendRows(flushCtx, ing.id, batch); err != nil && pumpErr == nil {
			pumpErr = fmt.Errorf("store rows: %w", err)
		}
	}
	if len(failed) > 0 {
		if err := s.store.AppendFailedRows(flushCtx, ing.id, failed); err != nil && pumpErr == nil {
			pumpErr = fmt.Errorf("store failed rows: %w", err)
		}
	}

	// Counters are valid even on failure; publish the last known state. The
	// counting reader, not the parser, is authoritative for bytes: the
	// parser ignores fragments arriving after a terminal error.
	ing.update(func(p *IngestProgress) {
		p.Rows = parser.Rows()
		p.Lines = parser.Lines()
		p.Invalid = invalid
		p.BytesRead = counted.Bytes()
	})

	return stored, pumpErr
}

// finish records the outcome, publishes the terminal progress state and
// schedules the ingest for removal from tracking.
func (s *Service) finish(ing *activeIngest, ds Dataset, start time.Time, stored int, runErr error) {
	snap := ing.snapshot()

	phase := PhaseComplete
	errMsg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		phase = PhaseCancelled
		errMsg = "cancelled"
	case errors.Is(runErr, context.DeadlineExceeded):
		phase = PhaseFailed
		errMsg = "timed out"
	default:
		phase = PhaseFailed
		errMsg = runErr.Error()
	}

	result := IngestResult{
		ID:         ing.id,
		DatasetKey: snap.DatasetKey,
		FileName:   snap.FileName,
		Rows:       snap.Rows,
		Lines:      snap.Lines,
		Stored:     stored,
		Invalid:    snap.Invalid,
		Bytes:      snap.BytesRead,
		Duration:   time.Since(start),
		Error:      errMsg,
	}

	completeCtx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	if err := s.store.CompleteIngest(completeCtx, result); err != nil {
		s.log.Error("record ingest outcome", "ingest", ing.id, "error", err)
	}

	ing.mu.Lock()
	ing.result = &result
	ing.mu.Unlock()

	ing.update(func(p *IngestProgress) {
		p.Phase = phase
		p.Error = errMsg
	})

	close(ing.done)
	ing.closeListeners()
	s.cleanup(ing.id, s.opts.CleanupDelay)

	if runErr != nil {
		s.log.Warn("ingest finished", "ingest", ing.id, "dataset", ds.Key,
			"phase", phase, "rows", result.Rows, "error", errMsg)
		return
	}
	s.log.Info("ingest finished", "ingest", ing.id, "dataset", ds.Key,
		"rows", result.Rows, "stored", result.Stored, "invalid", result.Invalid,
		"duration", result.Duration)
}
