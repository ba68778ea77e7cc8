package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/document"
)

// DocumentHandler serves /v1/documents.
type DocumentHandler struct {
	store document.Store
}

func NewDocumentHandler(store document.Store) *DocumentHandler {
	return &DocumentHandler{store: store}
}

// Upload stores the multipart "file" field and returns its reference.
func (h *DocumentHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.Wrap(apperror.CodeValidation, "multipart field \"file\" is required", err)
	}
	if fh.Size > document.MaxSize {
		return apperror.New(apperror.CodeValidation, "document exceeds 10 MiB")
	}
	f, err := fh.Open()
	if err != nil {
		return apperror.Wrap(apperror.CodeValidation, "unreadable upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, document.MaxSize+1))
	if err != nil {
		return apperror.Wrap(apperror.CodeValidation, "unreadable upload", err)
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	obj, err := h.store.Put(c.Request().Context(), data, contentType)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, obj, "document stored")
}

// Get streams a document back with its stored content type.
func (h *DocumentHandler) Get(c echo.Context) error {
	obj, err := h.store.Get(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	ct := obj.ContentType
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	c.Response().Header().Set("ETag", `"`+obj.Ref+`"`)
	return c.Blob(http.StatusOK, ct, obj.Data)
}
