package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	register(v)
	return v
}

// Init 给 gin 的校验引擎 (binding 标签) 注册同一套类型与字段名规则
// Struct 使用独立的实例, 读取 validate 标签
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		register(v)
	}
}

func register(v *validator.Validate) {
	// decimal 按数值参与 gt/gte/lte 比较
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// 字段名使用 json 标签, 错误信息与请求体一致
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// Struct 校验非 HTTP 来源的结构体 (例如审批请求的 payload)
func Struct(s interface{}) error {
	return validate.Struct(s)
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Namespace()
			if i := strings.Index(field, "."); i >= 0 {
				field = field[i+1:]
			}
			tag := e.Tag()
			param := e.Param()

			switch tag {
			case "required", "required_if":
				errMsgs = append(errMsgs, fmt.Sprintf("%s is required", field))
			case "min", "gte":
				errMsgs = append(errMsgs, fmt.Sprintf("%s must be at least %s", field, param))
			case "max", "lte":
				errMsgs = append(errMsgs, fmt.Sprintf("%s must be at most %s", field, param))
			case "gt":
				errMsgs = append(errMsgs, fmt.Sprintf("%s must be greater than %s", field, param))
			case "oneof":
				errMsgs = append(errMsgs, fmt.Sprintf("%s must be one of [%s]", field, param))
			case "eth_addr":
				errMsgs = append(errMsgs, fmt.Sprintf("%s is not a valid address", field))
			case "eq":
				errMsgs = append(errMsgs, fmt.Sprintf("%s must be %s", field, param))
			default:
				errMsgs = append(errMsgs, fmt.Sprintf("%s failed validation (%s)", field, tag))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "invalid request parameters"
}
