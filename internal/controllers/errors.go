package controllers

import (
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/ucampus/attendance_backend/internal/attendance"
)

// respondCoreError maps the attendance package's error kinds onto HTTP.
// Pipeline rejections are expected outcomes and answer 400 with the
// specific reason; only unclassified errors become 500.
func respondCoreError(c *gin.Context, err error) {
    var vErr *attendance.ValidationError
    switch {
    case errors.As(err, &vErr):
        c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Msg})
    case errors.Is(err, attendance.ErrNotFound):
        c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
    case errors.Is(err, attendance.ErrForbidden):
        c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
    case errors.Is(err, attendance.ErrConflict):
        c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
    case errors.Is(err, attendance.ErrInvalidCode),
        errors.Is(err, attendance.ErrSessionInactive),
        errors.Is(err, attendance.ErrCodeRotated),
        errors.Is(err, attendance.ErrOutOfWindow),
        errors.Is(err, attendance.ErrAlreadyCompleted),
        errors.Is(err, attendance.ErrExternalsNotAllowed):
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    default:
        c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
    }
}
