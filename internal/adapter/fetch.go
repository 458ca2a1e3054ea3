package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"webpsync/internal/analysis"
	"webpsync/internal/apperr"
)

type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{Timeout: timeout},
		MaxBytes:   analysis.MaxFileSize,
	}
}

// Fetch downloads the raw bytes behind imageURL.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	const op = "adapter.Fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, "url gambar tidak valid", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, op, "gagal mengunduh gambar", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.KindStorage, op, fmt.Sprintf("gagal mengunduh gambar: status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, op, "gagal membaca isi gambar", err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, apperr.New(apperr.KindValidation, op, fmt.Sprintf("gambar melebihi batas %d MB", f.MaxBytes/1024/1024))
	}
	return data, nil
}
