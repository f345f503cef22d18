package server

import (
	"context"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/pdf-narrator/internal/audio"
	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
)

// Multipart field names.
const (
	FieldPDF          = "pdf"
	FieldVoice        = "voice"
	FieldLanguage     = "language"
	FieldSlow         = "slow"
	FieldPageStart    = "page_start"
	FieldPageEnd      = "page_end"
	FieldCleanVoice   = "clean_voice"
	FieldReduceNoise  = "reduce_noise"
	FieldNormalize    = "normalize_audio"
	FieldApplyFilters = "apply_filters"
	FieldTrimSilence  = "trim_silence"
)

const (
	errFmtMissingField = "missing %q file: %w"
	errFmtNotPDF       = "%q is not a PDF file"
	errFmtNotAudio     = "%q is not a supported audio file (wav, mp3, flac)"
	errFmtInvalidBool  = "invalid %s value %q"
	errFmtInvalidPage  = "invalid %s value %q: pages are numbered from 1"
	errFmtSaveUpload   = "save upload %s: %w"
	headerDisposition  = "Content-Disposition"
)

const uploadFilePermission = 0o600

func (s *Server) handlePDFInfo(w http.ResponseWriter, r *http.Request) {
	s.withUploads(w, r, func(ctx context.Context, dir string) error {
		pdfPath, err := saveUpload(r, FieldPDF, dir, ttsutils.IsPDFFile, errFmtNotPDF)
		if err != nil {
			return err
		}

		info, err := s.converter.Info(ctx, pdfPath)
		if err != nil {
			return err
		}

		writeJSON(w, http.StatusOK, info)

		return nil
	})
}

func (s *Server) handleConvertCloud(w http.ResponseWriter, r *http.Request) {
	s.withUploads(w, r, func(ctx context.Context, dir string) error {
		pdfPath, err := saveUpload(r, FieldPDF, dir, ttsutils.IsPDFFile, errFmtNotPDF)
		if err != nil {
			return err
		}

		pages, err := pageRange(r)
		if err != nil {
			return err
		}

		slow, err := formBool(r, FieldSlow, false)
		if err != nil {
			return err
		}

		result, err := s.converter.ConvertCloud(ctx, convert.CloudRequest{
			PDFPath:    pdfPath,
			OutputPath: outputPath(dir, pdfPath, audio.FormatMP3.Extension()),
			Language:   s.language(r),
			Slow:       slow,
			Pages:      pages,
		})
		if err != nil {
			return err
		}

		return serveAudio(w, r, result, ttsutils.OutputName(uploadName(r, FieldPDF), audio.FormatMP3.Extension()))
	})
}

func (s *Server) handleConvertClone(w http.ResponseWriter, r *http.Request) {
	s.withUploads(w, r, func(ctx context.Context, dir string) error {
		pdfPath, err := saveUpload(r, FieldPDF, dir, ttsutils.IsPDFFile, errFmtNotPDF)
		if err != nil {
			return err
		}

		voicePath, err := saveUpload(r, FieldVoice, dir, ttsutils.IsValidAudioFile, errFmtNotAudio)
		if err != nil {
			return err
		}

		pages, err := pageRange(r)
		if err != nil {
			return err
		}

		cfg, err := s.enhanceConfig(r, false)
		if err != nil {
			return err
		}

		result, err := s.converter.ConvertClone(ctx, convert.CloneRequest{
			PDFPath:    pdfPath,
			VoicePath:  voicePath,
			OutputPath: outputPath(dir, pdfPath, audio.FormatWAV.Extension()),
			Language:   s.language(r),
			Pages:      pages,
			Enhance:    cfg,
		})
		if err != nil {
			return err
		}

		return serveAudio(w, r, result, ttsutils.OutputName(uploadName(r, FieldPDF), audio.FormatWAV.Extension()))
	})
}

func (s *Server) handleVoiceClean(w http.ResponseWriter, r *http.Request) {
	s.withUploads(w, r, func(ctx context.Context, dir string) error {
		voicePath, err := saveUpload(r, FieldVoice, dir, ttsutils.IsValidAudioFile, errFmtNotAudio)
		if err != nil {
			return err
		}

		cfg, err := s.enhanceConfig(r, true)
		if err != nil {
			return err
		}

		result, err := s.converter.CleanVoice(ctx, convert.CleanRequest{
			VoicePath:  voicePath,
			OutputPath: enhance.CleanedPath(filepath.Join(dir, "output", filepath.Base(voicePath))),
			Enhance:    cfg,
		})
		if err != nil {
			return err
		}

		return serveAudio(w, r, result, filepath.Base(enhance.CleanedPath(uploadName(r, FieldVoice))))
	})
}

func (s *Server) language(r *http.Request) string {
	language := strings.TrimSpace(r.FormValue(FieldLanguage))
	if language == "" {
		return s.opts.DefaultLanguage
	}

	return language
}

// enhanceConfig reads the enhancement flags, falling back to the server
// defaults. forceEnabled ignores clean_voice, for the cleaning endpoint.
func (s *Server) enhanceConfig(r *http.Request, forceEnabled bool) (enhance.Config, error) {
	cfg := s.opts.DefaultEnhance

	fields := []struct {
		name  string
		value *bool
	}{
		{FieldCleanVoice, &cfg.Enabled},
		{FieldReduceNoise, &cfg.ReduceNoise},
		{FieldNormalize, &cfg.Normalize},
		{FieldApplyFilters, &cfg.ApplyFilters},
		{FieldTrimSilence, &cfg.TrimSilence},
	}

	for _, field := range fields {
		value, err := formBool(r, field.name, *field.value)
		if err != nil {
			return enhance.Config{}, err
		}

		*field.value = value
	}

	if forceEnabled {
		cfg.Enabled = true
	}

	return cfg, nil
}

// pageRange converts the 1-based page_start/page_end fields into a 0-based
// range. Both empty selects the whole document.
func pageRange(r *http.Request) (*document.PageRange, error) {
	startRaw := strings.TrimSpace(r.FormValue(FieldPageStart))
	endRaw := strings.TrimSpace(r.FormValue(FieldPageEnd))

	if startRaw == "" && endRaw == "" {
		return nil, nil
	}

	start, err := pageNumber(FieldPageStart, startRaw, 1)
	if err != nil {
		return nil, err
	}

	end, err := pageNumber(FieldPageEnd, endRaw, math.MaxInt32)
	if err != nil {
		return nil, err
	}

	return &document.PageRange{Start: start - 1, End: end - 1}, nil
}

func pageNumber(field, raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, badRequest(errFmtInvalidPage, field, raw)
	}

	return value, nil
}

func formBool(r *http.Request, field string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest(errFmtInvalidBool, field, raw)
	}

	return value, nil
}

// saveUpload copies the multipart file in field into dir and returns its path.
func saveUpload(r *http.Request, field, dir string, accept func(string) bool, rejectFmt string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", badRequest(errFmtMissingField, field, err)
	}
	defer file.Close()

	name := ttsutils.SanitizeFilename(filepath.Base(header.Filename))
	if !accept(name) {
		return "", badRequest(rejectFmt, header.Filename)
	}

	path := filepath.Join(dir, field+"-"+name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, uploadFilePermission)
	if err != nil {
		return "", fmt.Errorf(errFmtSaveUpload, field, err)
	}

	_, copyErr := io.Copy(out, file)
	closeErr := out.Close()

	if copyErr != nil {
		return "", fmt.Errorf(errFmtSaveUpload, field, copyErr)
	}

	if closeErr != nil {
		return "", fmt.Errorf(errFmtSaveUpload, field, closeErr)
	}

	return path, nil
}

func uploadName(r *http.Request, field string) string {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return field
	}

	return r.MultipartForm.File[field][0].Filename
}

func outputPath(dir, inputPath, extension string) string {
	return filepath.Join(dir, "output", ttsutils.OutputName(inputPath, extension))
}

// serveAudio streams the conversion output as an attachment.
func serveAudio(w http.ResponseWriter, r *http.Request, result convert.Result, downloadName string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	w.Header().Set(headerContentType, result.Format.ContentType())
	w.Header().Set(headerDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))

	http.ServeContent(w, r, downloadName, time.Time{}, file)

	return nil
}
