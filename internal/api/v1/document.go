package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgerdesk/backoffice/internal/api/dto"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/service"
	"github.com/ledgerdesk/backoffice/internal/types"
)

type DocumentHandler struct {
	services  service.DocumentServices
	maxUpload int64
	log       *logger.Logger
}

func NewDocumentHandler(services service.DocumentServices, cfg *config.Configuration, log *logger.Logger) *DocumentHandler {
	maxUpload := cfg.Server.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &DocumentHandler{services: services, maxUpload: maxUpload, log: log}
}

func (h *DocumentHandler) service(c *gin.Context) (service.DocumentService, bool) {
	svc, err := h.services.For(types.DocumentKind(c.Param("kind")))
	if err != nil {
		c.Error(err)
		return nil, false
	}
	return svc, true
}

// @Summary Create a document
// @Description Create a document of the given kind and generate its artifact. Send JSON, or multipart/form-data with the JSON request in "payload" and an optional "attachment" file.
// @Tags Documents
// @Accept json,mpfd
// @Produce json
// @Param kind path string true "Document kind" Enums(purchase_order, quote, receipt, request)
// @Param document body dto.CreateDocumentRequest true "Document"
// @Success 201 {object} dto.DocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Failure 504 {object} ierr.ErrorResponse
// @Router /documents/{kind} [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	var req dto.CreateDocumentRequest
	if isMultipart(c) {
		if err := bindPayload(c, &req); err != nil {
			c.Error(err)
			return
		}
		attachment, err := h.readAttachment(c)
		if err != nil {
			c.Error(err)
			return
		}
		req.Attachment = attachment
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := svc.CreateDocument(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a document
// @Tags Documents
// @Produce json
// @Param kind path string true "Document kind"
// @Param id path string true "Document ID"
// @Success 200 {object} dto.DocumentResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{kind}/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	resp, err := svc.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List documents
// @Description List documents of a kind, newest first
// @Tags Documents
// @Produce json
// @Param kind path string true "Document kind"
// @Param filter query types.DocumentFilter false "Filter"
// @Success 200 {object} dto.ListDocumentsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{kind} [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	var filter types.DocumentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Please check the query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := svc.ListDocuments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a document
// @Description Replace the fields of a document and regenerate its artifact
// @Tags Documents
// @Accept json
// @Produce json
// @Param kind path string true "Document kind"
// @Param id path string true "Document ID"
// @Param document body dto.UpdateDocumentRequest true "Document"
// @Success 200 {object} dto.DocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{kind}/{id} [put]
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := svc.UpdateDocument(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Delete a document
// @Description Delete a document together with its artifact
// @Tags Documents
// @Param kind path string true "Document kind"
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{kind}/{id} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	if err := svc.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Regenerate the artifact of a document
// @Description Generates a new revision of the artifact, optionally with an attachment sent as multipart "attachment"
// @Tags Documents
// @Accept json,mpfd
// @Produce json
// @Param kind path string true "Document kind"
// @Param id path string true "Document ID"
// @Success 200 {object} dto.DocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 504 {object} ierr.ErrorResponse
// @Router /documents/{kind}/{id}/artifact [post]
func (h *DocumentHandler) RegenerateArtifact(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	var req dto.GenerateArtifactRequest
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Please check the request payload").
				Mark(ierr.ErrValidation))
			return
		}
		attachment, err := h.readAttachment(c)
		if err != nil {
			c.Error(err)
			return
		}
		req.Attachment = attachment
	} else if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Please check the request payload").
				Mark(ierr.ErrValidation))
			return
		}
	}

	resp, err := svc.RegenerateArtifact(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Download the artifact of a document
// @Tags Documents
// @Produce application/pdf
// @Param kind path string true "Document kind"
// @Param id path string true "Document ID"
// @Param url query bool false "Return a presigned URL of the mirrored artifact instead of the file"
// @Success 200 {file} application/pdf
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{kind}/{id}/artifact [get]
func (h *DocumentHandler) GetArtifact(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	id := c.Param("id")

	if c.Query("url") == "true" {
		link, err := svc.ArtifactURL(c.Request.Context(), id)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"presigned_url": link})
		return
	}

	dl, err := svc.OpenArtifact(c.Request.Context(), id)
	if err != nil {
		h.log.Errorw("failed to open artifact", "error", err, "id", id)
		c.Error(err)
		return
	}
	defer dl.Content.Close()

	c.DataFromReader(http.StatusOK, dl.Size, "application/pdf", dl.Content, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename*=UTF-8''%s", url.PathEscape(dl.Name)),
	})
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindPayload decodes the JSON request carried in the "payload" form field
func bindPayload(c *gin.Context, req *dto.CreateDocumentRequest) error {
	payload := c.PostForm("payload")
	if payload == "" {
		return ierr.NewError("payload form field is required").
			WithHint("Send the document as JSON in the payload field").
			Mark(ierr.ErrValidation)
	}
	if err := json.Unmarshal([]byte(payload), req); err != nil {
		return ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// readAttachment returns the optional "attachment" file, nil when absent
func (h *DocumentHandler) readAttachment(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("attachment")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, ierr.WithError(err).
			WithHint("Attachment upload failed").
			Mark(ierr.ErrInvalidAttachment)
	}
	if fh.Size > h.maxUpload {
		return nil, ierr.NewErrorf("attachment is %d bytes", fh.Size).
			WithHintf("Attachments are limited to %d MiB", h.maxUpload>>20).
			Mark(ierr.ErrInvalidAttachment)
	}
	return readFile(fh, h.maxUpload)
}

func readFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Attachment upload failed").
			Mark(ierr.ErrInvalidAttachment)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Attachment upload failed").
			Mark(ierr.ErrInvalidAttachment)
	}
	return data, nil
}
