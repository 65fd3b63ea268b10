package handler

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// 座位編號：1-3 位數排號 + 一個大寫字母
var seatNumberPattern = regexp.MustCompile(`^[0-9]{1,3}[A-Z]$`)

func validSeatNumber(fl validator.FieldLevel) bool {
	return seatNumberPattern.MatchString(fl.Field().String())
}

// RegisterValidators 在 gin 的 validator 上註冊自訂規則，需在綁定請求前呼叫
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("seatnumber", validSeatNumber)
}
