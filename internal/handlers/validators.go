package handlers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/services"
)

// RegisterValidators adds the domain tags to gin's validator engine
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	if err := v.RegisterValidation("valve_status", validateValveStatus); err != nil {
		return err
	}
	if err := v.RegisterValidation("conflict_mode", validateConflictMode); err != nil {
		return err
	}
	return v.RegisterValidation("valve_role", validateRole)
}

func validateValveStatus(fl validator.FieldLevel) bool {
	return models.IsValidValveStatus(fl.Field().String())
}

func validateConflictMode(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case services.ConflictCancel, services.ConflictSkip, services.ConflictOverwrite:
		return true
	}
	return false
}

func validateRole(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, r := range models.ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// validationMessage turns a binding error into a short user message
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "请求参数格式错误"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s 不能为空", field)
	case "min":
		return fmt.Sprintf("%s 长度或数量不能小于 %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s 长度或数量不能超过 %s", field, fe.Param())
	case "valve_status":
		return "无效的状态"
	case "conflict_mode":
		return "冲突处理方式必须是 cancel、skip 或 overwrite"
	case "valve_role":
		return "无效的角色"
	}
	return fmt.Sprintf("%s 格式错误", field)
}
