package api

import "github.com/nao1215/summarize/pkg/validation"

// registerRequest は利用者登録のリクエストボディ。
type registerRequest struct {
	Username  string `json:"username" validate:"required"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

// loginRequest はログインのリクエストボディ。username と email の少なくとも一方が必要。
type loginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"required_without=Username"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// updateUserRequest は利用者更新のリクエストボディ。空のフィールドは変更しない。
type updateUserRequest struct {
	Username  string `json:"username" validate:"required_without_all=FirstName LastName"`
	FirstName string `json:"firstName" validate:"required_without_all=Username LastName"`
	LastName  string `json:"lastName" validate:"required_without_all=Username FirstName"`
}

type createSummaryRequest struct {
	Content []string `json:"content" validate:"required"`
	PDFFile string   `json:"pdf_file" validate:"required"`
}

type updateSummaryRequest struct {
	Content []string `json:"content" validate:"required"`
}

type pollRequest struct {
	RequestID string `json:"requestId" validate:"required"`
}

// ルートごとのスキーマ。起動時に一度だけコンパイルする。
var (
	registerSchema      = validation.MustCompile[registerRequest]("register")
	loginSchema         = validation.MustCompile[loginRequest]("login")
	refreshSchema       = validation.MustCompile[refreshRequest]("refresh")
	updateUserSchema    = validation.MustCompile[updateUserRequest]("update_user")
	createSummarySchema = validation.MustCompile[createSummaryRequest]("create_summary")
	updateSummarySchema = validation.MustCompile[updateSummaryRequest]("update_summary")
	pollSchema          = validation.MustCompile[pollRequest]("poll_extraction")
)
