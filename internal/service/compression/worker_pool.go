package compression

import (
	"context"
	"log/slog"
	"sync"

	"webpsync/internal/analysis"
	"webpsync/internal/codec"
)

type simpleJob struct {
	index int
	file  analysis.File
}

type processResult struct {
	index  int
	result FileResult
}

// runWorkerPool converts files on a bounded number of goroutines. Results
// are written back by input index so the output order matches files.
func runWorkerPool(ctx context.Context, enc Encoder, files []analysis.File, opts codec.Options, numWorkers int, cb *callbacks) []FileResult {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	jobs := make(chan simpleJob)
	out := make(chan processResult, len(files))

	var wg sync.WaitGroup
	for i := 1; i <= numWorkers; i++ {
		wg.Add(1)
		go simpleWorker(ctx, enc, opts, len(files), jobs, out, &wg, cb, i)
	}

	dispatched := 0
DispatchLoop:
	for i, f := range files {
		select {
		case <-ctx.Done():
			slog.Warn("Pembatalan diminta, berhenti mengirim file ke worker pool.")
			break DispatchLoop
		case jobs <- simpleJob{index: i, file: f}:
			dispatched++
		}
	}
	close(jobs)

	wg.Wait()
	close(out)

	results := make([]FileResult, len(files))
	for r := range out {
		results[r.index] = r.result
	}
	for i := dispatched; i < len(files); i++ {
		results[i] = cancelled(files[i], ctx.Err())
		cb.complete(results[i])
	}

	succeeded, failedCount := summarize(results)
	slog.Info("Proses worker pool selesai.",
		"berhasil", succeeded,
		"gagal", failedCount,
		"workers", numWorkers,
	)
	return results
}

func simpleWorker(
	ctx context.Context,
	enc Encoder,
	opts codec.Options,
	total int,
	jobs <-chan simpleJob,
	out chan<- processResult,
	wg *sync.WaitGroup,
	cb *callbacks,
	workerID int,
) {
	defer wg.Done()

	for job := range jobs {
		cb.progress(progressFor(job.index, total, job.file.Name))
		slog.Debug("Worker memproses file",
			"worker_id", workerID,
			"file_name", job.file.Name,
		)

		r := convertFile(enc, job.file, opts)
		cb.complete(r)
		out <- processResult{index: job.index, result: r}
	}
}
