package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support_chat/internal/domain"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type UploadHandler struct {
	storage service.StorageService
	log     logger.Logger
}

func NewUploadHandler(storage service.StorageService, log logger.Logger) *UploadHandler {
	return &UploadHandler{
		storage: storage,
		log:     log,
	}
}

// Upload сохраняет файл и возвращает ссылку, которую клиент потом
// вкладывает в local_file_url фрейма сообщения
func (h *UploadHandler) Upload(c *gin.Context) {
	messageType := c.Param("type")
	if !domain.ValidMessageType(messageType) || messageType == domain.MessageTypeText {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload type"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer src.Close()

	storedName, localURL, err := h.storage.SaveUpload(fileHeader.Filename, src)
	if err != nil {
		h.log.Error("Failed to save upload", "file_name", fileHeader.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_name":      storedName,
		"local_file_url": localURL,
		"message_type":   messageType,
	})
}
