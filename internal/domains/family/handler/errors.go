package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/shared/response"
)

// errorSpec - HTTP status + code ổn định + message theo ngôn ngữ
type errorSpec struct {
	status int
	code   string
	ar     string
	en     string
}

var (
	errSpecPermission = errorSpec{http.StatusForbidden, "PERMISSION_DENIED",
		"ليس لديك صلاحية لتعديل هذا الفرع", "You do not have permission to edit this branch"}
	errSpecVersion = errorSpec{http.StatusConflict, "VERSION_CONFLICT",
		"تم تعديل البيانات من قبل مستخدم آخر، يرجى التحديث والمحاولة مرة أخرى", "The data was changed by someone else. Refresh and try again"}
	errSpecBusy = errorSpec{http.StatusLocked, "RESOURCE_BUSY",
		"يقوم مستخدم آخر بتعديل هذه العائلة الآن، حاول بعد قليل", "Someone else is editing this family right now. Try again shortly"}
	errSpecValidation = errorSpec{http.StatusUnprocessableEntity, "VALIDATION_ERROR",
		"البيانات المدخلة غير صالحة", "The submitted data is invalid"}
	errSpecUndone = errorSpec{http.StatusConflict, "ALREADY_UNDONE",
		"تم التراجع عن هذه العملية مسبقاً", "This change has already been undone"}
	errSpecTooLarge = errorSpec{http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE",
		"عدد العمليات يتجاوز الحد المسموح", "Too many operations in one request"}
	errSpecPersonNotFound = errorSpec{http.StatusNotFound, "PERSON_NOT_FOUND",
		"الشخص غير موجود", "Person not found"}
	errSpecGroupNotFound = errorSpec{http.StatusNotFound, "GROUP_NOT_FOUND",
		"العملية غير موجودة", "Operation group not found"}
	errSpecMarriageNotFound = errorSpec{http.StatusNotFound, "MARRIAGE_NOT_FOUND",
		"الزواج غير موجود", "Marriage not found"}
	errSpecInternal = errorSpec{http.StatusInternalServerError, "INTERNAL_ERROR",
		"حدث خطأ غير متوقع", "Something went wrong"}
)

// errorMap - thứ tự quan trọng: check sentinel cụ thể trước
var errorMap = []struct {
	target error
	spec   errorSpec
}{
	{model.ErrPermissionDenied, errSpecPermission},
	{model.ErrVersionConflict, errSpecVersion},
	{model.ErrResourceBusy, errSpecBusy},
	{model.ErrAlreadyUndone, errSpecUndone},
	{model.ErrBatchTooLarge, errSpecTooLarge},
	{model.ErrPersonNotFound, errSpecPersonNotFound},
	{model.ErrGroupNotFound, errSpecGroupNotFound},
	{model.ErrMarriageNotFound, errSpecMarriageNotFound},
	{model.ErrValidation, errSpecValidation},
}

// handleError map domain error -> response envelope
func handleError(c *gin.Context, err error) {
	lang := language(c)

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		response.ErrorWithDetails(c, errSpecValidation.status, errSpecValidation.code,
			errSpecValidation.message(lang), verr)
		return
	}

	for _, m := range errorMap {
		if errors.Is(err, m.target) {
			response.ErrorResponse(c, m.spec.status, m.spec.code, m.spec.message(lang))
			return
		}
	}

	log.Error().Err(err).
		Str("request_id", c.GetString("request_id")).
		Str("path", c.Request.URL.Path).
		Msg("unhandled error")
	response.ErrorResponse(c, errSpecInternal.status, errSpecInternal.code, errSpecInternal.message(lang))
}

// language: tiếng Ả Rập mặc định, tiếng Anh khi Accept-Language bắt đầu bằng "en"
func language(c *gin.Context) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.GetHeader("Accept-Language"))), "en") {
		return "en"
	}
	return "ar"
}

func (s errorSpec) message(lang string) string {
	if lang == "en" {
		return s.en
	}
	return s.ar
}
