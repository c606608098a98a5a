package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	applogger "MMDiag/pkg/logger"
	"MMDiag/pkg/queue"
	"MMDiag/pkg/util"
)

// BatchRunUseCase fans one trading day out over many instruments with a
// bounded worker pool. Instruments are independent, so a failure on one never
// stops the others; failures come back per instrument.
type BatchRunUseCase struct {
	runner    *DailyRunUseCase
	baselines domrepo.BaselineStore
	workers   int
	q         queue.QueueService
	l         *applogger.Logger
}

func NewBatchRunUseCase(runner *DailyRunUseCase, baselines domrepo.BaselineStore, workers int, l *applogger.Logger) *BatchRunUseCase {
	if workers <= 0 {
		workers = 8
	}
	return &BatchRunUseCase{runner: runner, baselines: baselines, workers: workers, l: l}
}

// WithQueue enables asynchronous dispatch through the given work queue.
func (uc *BatchRunUseCase) WithQueue(q queue.QueueService) *BatchRunUseCase {
	uc.q = q
	return uc
}

// BatchResult reports one batch run. Failures maps instrument to the error
// that stopped it.
type BatchResult struct {
	Date        time.Time                          `json:"date"`
	Succeeded   int                                `json:"succeeded"`
	Diagnostics map[string]*models.DailyDiagnostic `json:"-"`
	Failures    map[string]string                  `json:"failures,omitempty"`
}

// RunDay processes the given date for every listed instrument, or for all
// tracked instruments when the list is empty.
func (uc *BatchRunUseCase) RunDay(ctx context.Context, date time.Time, instruments []string) (*BatchResult, error) {
	if len(instruments) == 0 {
		var err error
		instruments, err = uc.baselines.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
	}

	type outcome struct {
		instrument string
		d          *models.DailyDiagnostic
		err        error
	}

	start := time.Now()
	work := make(chan string)
	results := make(chan outcome, len(instruments))

	var wg sync.WaitGroup
	for i := 0; i < uc.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instrument := range work {
				d, err := uc.runner.Run(ctx, instrument, date)
				results <- outcome{instrument: instrument, d: d, err: err}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, instrument := range instruments {
			select {
			case work <- instrument:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() { wg.Wait(); close(results) }()

	res := &BatchResult{
		Date:        date,
		Diagnostics: make(map[string]*models.DailyDiagnostic, len(instruments)),
		Failures:    make(map[string]string),
	}
	for out := range results {
		if out.err != nil {
			res.Failures[out.instrument] = out.err.Error()
			continue
		}
		res.Succeeded++
		res.Diagnostics[out.instrument] = out.d
	}

	if uc.l != nil {
		uc.l.Info("batch run complete",
			applogger.String("date", util.FormatDay(date)),
			applogger.Int("instruments", len(instruments)),
			applogger.Int("succeeded", res.Succeeded),
			applogger.Int("failed", len(res.Failures)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return res, ctx.Err()
}

// RunDayAsync enqueues one run request per instrument instead of executing
// them in-process. Requires a configured queue.
func (uc *BatchRunUseCase) RunDayAsync(ctx context.Context, date time.Time, instruments []string) (int, error) {
	if uc.q == nil {
		return 0, fmt.Errorf("no work queue configured")
	}
	if len(instruments) == 0 {
		var err error
		instruments, err = uc.baselines.List(ctx)
		if err != nil {
			return 0, fmt.Errorf("list instruments: %w", err)
		}
	}
	if err := EnqueueDay(ctx, uc.q, date, instruments); err != nil {
		return 0, err
	}
	if uc.l != nil {
		uc.l.Info("batch run enqueued",
			applogger.String("date", util.FormatDay(date)),
			applogger.Int("instruments", len(instruments)),
		)
	}
	return len(instruments), nil
}

// DailyRunMsgType is the queue message type for distributed daily runs.
const DailyRunMsgType = "diagnostic.daily_run"

// DailyRunPayload is the queued form of one (instrument, date) run request.
type DailyRunPayload struct {
	Instrument string `json:"instrument"`
	Date       string `json:"date"` // 2006-01-02
}

// DailyRunJob adapts DailyRunUseCase to the work queue, so large batches can
// be spread across processes instead of one in-memory pool.
type DailyRunJob struct {
	runner *DailyRunUseCase
}

func NewDailyRunJob(runner *DailyRunUseCase) *DailyRunJob {
	return &DailyRunJob{runner: runner}
}

func (j *DailyRunJob) Name() string { return "daily_run" }
func (j *DailyRunJob) Type() string { return DailyRunMsgType }

func (j *DailyRunJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[DailyRunPayload](payload)
	if err != nil {
		return fmt.Errorf("parse daily run payload: %w", err)
	}
	date, err := util.ParseDay(p.Date)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", p.Date, err)
	}
	_, err = j.runner.Run(ctx, p.Instrument, date)
	return err
}

var _ queue.Job = (*DailyRunJob)(nil)

// EnqueueDay pushes one run request per instrument onto the queue.
func EnqueueDay(ctx context.Context, q queue.QueueService, date time.Time, instruments []string) error {
	for _, instrument := range instruments {
		err := q.PublishMessage(ctx, DailyRunMsgType, DailyRunPayload{
			Instrument: instrument,
			Date:       util.FormatDay(date),
		})
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", instrument, err)
		}
	}
	return nil
}
