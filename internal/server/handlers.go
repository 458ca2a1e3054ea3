package server

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"

	"webpsync/internal/analysis"
	"webpsync/internal/apperr"
	"webpsync/internal/codec"
	"webpsync/internal/config"
	"webpsync/internal/model"
	"webpsync/internal/schedule"
	"webpsync/internal/service/compression"
	"webpsync/internal/source"
)

type optionsRequest struct {
	Preset            string `json:"preset" form:"preset"`
	Quality           *int   `json:"quality" form:"quality"`
	TargetWidth       *int   `json:"target_width" form:"target_width"`
	TargetHeight      *int   `json:"target_height" form:"target_height"`
	Watermark         *bool  `json:"watermark" form:"watermark"`
	WatermarkPosition string `json:"watermark_position" form:"watermark_position"`
	WatermarkText     string `json:"watermark_text" form:"watermark_text"`
}

type convertRequest struct {
	optionsRequest
	SourceTable string `json:"source_table" binding:"required"`
	SourceID    string `json:"source_id" binding:"required"`
	URL         string `json:"url" binding:"required"`
}

type batchRequest struct {
	optionsRequest
	Filter string `json:"filter"`
	Limit  int    `json:"limit"`
}

func (s *Server) resolveOptions(req optionsRequest) (codec.Options, error) {
	const op = "server.resolveOptions"
	opts := s.deps.Defaults

	if req.Preset != "" {
		p, ok := config.FindPreset(s.deps.Presets, req.Preset)
		if !ok {
			return opts, apperr.New(apperr.KindValidation, op, fmt.Sprintf("preset '%s' tidak ditemukan", req.Preset))
		}
		opts = p.Apply(opts)
	}
	if req.Quality != nil {
		opts.Quality = *req.Quality
	}
	if req.TargetWidth != nil {
		opts.TargetWidth = *req.TargetWidth
	}
	if req.TargetHeight != nil {
		opts.TargetHeight = *req.TargetHeight
	}
	if req.Watermark != nil {
		opts.Watermark.Enabled = *req.Watermark
	}
	if req.WatermarkPosition != "" {
		opts.Watermark.Position = codec.Position(req.WatermarkPosition)
	}
	if req.WatermarkText != "" {
		opts.Watermark.Text = req.WatermarkText
	}

	return opts, opts.Validate()
}

func bindError(err error) error {
	return apperr.Wrap(apperr.KindValidation, "server.bind", "permintaan tidak valid", err)
}

func (s *Server) handleListImages(c *gin.Context) {
	filter, err := source.ParseFilter(c.Query("filter"))
	if err != nil {
		writeError(c, err)
		return
	}

	records, err := s.deps.Scanner.Scan(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	total, webp := source.Count(records)
	c.JSON(http.StatusOK, gin.H{
		"images": source.ApplyFilter(records, filter),
		"total":  total,
		"webp":   webp,
		"other":  total - webp,
	})
}

func (s *Server) handleListConversions(c *gin.Context) {
	filter := model.ConversionFilter{
		Status:      model.ConversionStatus(c.Query("status")),
		SourceTable: c.Query("source_table"),
		SourceID:    c.Query("source_id"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(c, apperr.New(apperr.KindValidation, "server.handleListConversions", "limit tidak valid"))
			return
		}
		filter.Limit = limit
	}

	records, err := s.deps.Registry.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversions": records})
}

func (s *Server) handleConvertOne(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	kind, err := source.ParseKind(req.SourceTable)
	if err != nil {
		writeError(c, err)
		return
	}
	opts, err := s.resolveOptions(req.optionsRequest)
	if err != nil {
		writeError(c, err)
		return
	}

	img := source.NewImageRecord(kind, req.SourceID, req.URL)
	if img.IsWebP {
		writeError(c, apperr.New(apperr.KindPolicy, "server.handleConvertOne", "gambar sudah berformat WebP"))
		return
	}

	rec, err := s.deps.Registry.ConvertOne(c.Request.Context(), img, opts)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": apperr.Message(err), "kind": apperr.KindOf(err), "record": rec})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleConvertBatch(c *gin.Context) {
	var req batchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, bindError(err))
			return
		}
	}

	if req.Filter == "" {
		req.Filter = string(source.FilterOther)
	}
	filter, err := source.ParseFilter(req.Filter)
	if err != nil {
		writeError(c, err)
		return
	}
	opts, err := s.resolveOptions(req.optionsRequest)
	if err != nil {
		writeError(c, err)
		return
	}

	records, err := s.deps.Scanner.Scan(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	records = source.ApplyFilter(records, filter)
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}

	report, err := s.deps.Registry.BatchConvertAll(c.Request.Context(), records, opts, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRetry(c *gin.Context) {
	var req optionsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, bindError(err))
			return
		}
	}
	opts, err := s.resolveOptions(req)
	if err != nil {
		writeError(c, err)
		return
	}

	rec, err := s.deps.Registry.Retry(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": apperr.Message(err), "kind": apperr.KindOf(err), "record": rec})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleRestore(c *gin.Context) {
	rec, err := s.deps.Registry.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	sch, err := s.deps.Schedules.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

func (s *Server) handleUpdateSchedule(c *gin.Context) {
	var patch schedule.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, bindError(err))
		return
	}

	sch, err := s.deps.Schedules.Update(c.Request.Context(), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

func (s *Server) handleMetrics(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 366 {
			writeError(c, apperr.New(apperr.KindValidation, "server.handleMetrics", "jumlah hari tidak valid"))
			return
		}
		days = n
	}

	metrics, err := s.deps.Metrics.LastDays(c.Request.Context(), s.deps.Now(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

func (s *Server) handlePresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": s.deps.Presets, "defaults": s.deps.Defaults})
}

type analyzeItem struct {
	Name  string         `json:"name"`
	Info  *analysis.Info `json:"info,omitempty"`
	Error string         `json:"error,omitempty"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	files, err := readUploads(c)
	if err != nil {
		writeError(c, err)
		return
	}

	results := analysis.AnalyzeAll(files)
	items := make([]analyzeItem, 0, len(results))
	for _, r := range results {
		items = append(items, analyzeItem{Name: r.Name, Info: r.Info, Error: apperr.Message(r.Err)})
	}
	c.JSON(http.StatusOK, gin.H{"files": items})
}

type convertedItem struct {
	compression.FileResult
	Data string `json:"data,omitempty"`
}

func (s *Server) handleToolConvert(c *gin.Context) {
	var req optionsRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	opts, err := s.resolveOptions(req)
	if err != nil {
		writeError(c, err)
		return
	}

	files, err := readUploads(c)
	if err != nil {
		writeError(c, err)
		return
	}

	results, err := compression.ConvertBatch(c.Request.Context(), s.deps.Encoder, files, compression.BatchOptions{
		Codec:       opts,
		Concurrency: s.deps.Concurrency,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]convertedItem, 0, len(results))
	for _, r := range results {
		item := convertedItem{FileResult: r}
		if r.Status == compression.StatusSuccess {
			item.Data = base64.StdEncoding.EncodeToString(r.Blob)
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"files": items})
}

func readUploads(c *gin.Context) ([]analysis.File, error) {
	const op = "server.readUploads"

	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, "form multipart tidak valid", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "tidak ada file yang diunggah")
	}

	files := make([]analysis.File, 0, len(headers))
	for _, h := range headers {
		data, err := readUpload(h)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Sprintf("gagal membaca '%s'", h.Filename), err)
		}
		files = append(files, analysis.File{Name: h.Filename, Data: data})
	}
	return files, nil
}

func readUpload(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, analysis.MaxFileSize+1))
}

func (s *Server) handleFile(c *gin.Context) {
	key := path.Clean("/" + c.Param("path"))[1:]
	if key == "" {
		c.Status(http.StatusNotFound)
		return
	}

	rc, err := s.deps.Files.Open(c.Request.Context(), key)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
