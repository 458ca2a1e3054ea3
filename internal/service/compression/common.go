package compression

import (
	"context"
	"log/slog"
	"sync"

	"webpsync/internal/analysis"
	"webpsync/internal/apperr"
	"webpsync/internal/codec"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Encoder interface {
	Encode(data []byte, opts codec.Options) ([]byte, error)
}

type Progress struct {
	Current         int     `json:"current"`
	Total           int     `json:"total"`
	CurrentFileName string  `json:"current_file_name"`
	Percentage      float64 `json:"percentage"`
}

type FileResult struct {
	FileName string      `json:"file_name"`
	Status   string      `json:"status"`
	OldSize  int64       `json:"old_size"`
	NewSize  int64       `json:"new_size,omitempty"`
	Blob     []byte      `json:"-"`
	Message  string      `json:"message,omitempty"`
	Kind     apperr.Kind `json:"kind,omitempty"`
}

type BatchOptions struct {
	Codec          codec.Options
	Concurrency    int
	OnProgress     func(Progress)
	OnFileComplete func(FileResult)
}

// callbacks serializes user hooks so they are never invoked concurrently.
type callbacks struct {
	mu         sync.Mutex
	onProgress func(Progress)
	onComplete func(FileResult)
}

func (c *callbacks) progress(p Progress) {
	if c.onProgress == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress(p)
}

func (c *callbacks) complete(r FileResult) {
	if c.onComplete == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete(r)
}

func progressFor(i, total int, name string) Progress {
	return Progress{
		Current:         i + 1,
		Total:           total,
		CurrentFileName: name,
		Percentage:      float64(i) / float64(total) * 100,
	}
}

// ConvertBatch encodes every file with the same settings and returns one
// result per file in input order. Per-file failures never abort the batch;
// only invalid options are returned as an error.
func ConvertBatch(ctx context.Context, enc Encoder, files []analysis.File, opts BatchOptions) ([]FileResult, error) {
	if err := opts.Codec.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []FileResult{}, nil
	}

	cb := &callbacks{onProgress: opts.OnProgress, onComplete: opts.OnFileComplete}
	if opts.Concurrency > 1 {
		return runWorkerPool(ctx, enc, files, opts.Codec, opts.Concurrency, cb), nil
	}
	return runSequential(ctx, enc, files, opts.Codec, cb), nil
}

func convertFile(enc Encoder, f analysis.File, opts codec.Options) FileResult {
	res := FileResult{FileName: f.Name, OldSize: int64(len(f.Data))}

	if _, err := analysis.Validate(f.Data); err != nil {
		return failed(res, err)
	}

	blob, err := enc.Encode(f.Data, opts)
	if err != nil {
		return failed(res, err)
	}

	res.Status = StatusSuccess
	res.Blob = blob
	res.NewSize = int64(len(blob))
	return res
}

func failed(res FileResult, err error) FileResult {
	res.Status = StatusError
	res.Message = apperr.Message(err)
	res.Kind = apperr.KindOf(err)
	slog.Debug("Gagal mengonversi file", "file_name", res.FileName, "error", err)
	return res
}

func cancelled(f analysis.File, err error) FileResult {
	return FileResult{
		FileName: f.Name,
		Status:   StatusError,
		OldSize:  int64(len(f.Data)),
		Message:  "konversi dibatalkan: " + err.Error(),
		Kind:     apperr.KindInternal,
	}
}

func summarize(results []FileResult) (succeeded, failedCount int) {
	for _, r := range results {
		if r.Status == StatusSuccess {
			succeeded++
		} else {
			failedCount++
		}
	}
	return succeeded, failedCount
}
