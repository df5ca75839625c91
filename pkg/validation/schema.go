package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation はペイロードがスキーマを満たさない場合のエラー。
var ErrValidation = errors.New("validation: リクエストボディが不正です")

// Violation はスキーマ違反の1件を表す。値そのものは保持しない。
type Violation struct {
	Field string `json:"field,omitempty"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Error はスキーマ違反の一覧を持つエラー。errors.Is(err, ErrValidation) を満たす。
type Error struct {
	Schema     string
	Violations []Violation
}

func (e *Error) Error() string {
	rules := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		rules = append(rules, v.Field+":"+v.Rule)
	}
	return fmt.Sprintf("%s (schema=%s, %s)", ErrValidation.Error(), e.Schema, strings.Join(rules, ", "))
}

func (e *Error) Unwrap() error {
	return ErrValidation
}

// 違反の種類。validate タグ由来の規則はタグ名がそのまま入る。
const (
	RuleEmpty        = "empty"
	RuleSyntax       = "syntax"
	RuleType         = "type"
	RuleUnknownField = "unknown_field"
	RuleDuplicateKey = "duplicate_key"
	RuleTrailingData = "trailing_data"
)

// Schema は型Tで表されるコンパイル済みスキーマ。
// 生成後は不変で、複数のgoroutineから同時に使用できる。
type Schema[T any] struct {
	name     string
	validate *validator.Validate
	// fields は宣言済みのJSON名。大文字小文字を区別して照合する。
	fields map[string]struct{}
}

// Compile は型Tの検証規則を解析してスキーマを生成する。
// Tが構造体でない場合や validate タグに誤りがある場合はエラーを返す。
func Compile[T any](name string) (s *Schema[T], err error) {
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("validation: スキーマ %q の型は構造体である必要があります: %v", name, rt)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	// validator は未定義の規則をパニックで通知する
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("validation: スキーマ %q のコンパイルに失敗: %v", name, r)
		}
	}()
	var zero T
	_ = v.Struct(&zero)

	fields := make(map[string]struct{}, rt.NumField())
	for i := range rt.NumField() {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		if jsonName := jsonFieldName(f); jsonName != "" {
			fields[jsonName] = struct{}{}
		}
	}

	return &Schema[T]{name: name, validate: v, fields: fields}, nil
}

// MustCompile はCompileに失敗した場合にパニックする。
func MustCompile[T any](name string) *Schema[T] {
	s, err := Compile[T](name)
	if err != nil {
		panic(err)
	}
	return s
}

// Name はスキーマ名を返す。
func (s *Schema[T]) Name() string {
	return s.name
}

// Validate はペイロードを検証し、成功した場合は型付きの値を返す。
// 失敗した場合は *Error を返す。
func (s *Schema[T]) Validate(payload []byte) (T, error) {
	var out T
	if violations := s.check(payload, &out); len(violations) > 0 {
		var zero T
		return zero, &Error{Schema: s.name, Violations: violations}
	}
	return out, nil
}

// Valid はペイロードがスキーマを満たすかを返す。
func (s *Schema[T]) Valid(payload []byte) bool {
	_, err := s.Validate(payload)
	return err == nil
}

func (s *Schema[T]) check(payload []byte, out *T) []Violation {
	if violations := s.checkKeys(payload); len(violations) > 0 {
		return violations
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return []Violation{decodeViolation(err)}
	}

	err := s.validate.Struct(out)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Violation{{Rule: err.Error()}}
	}
	violations := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, Violation{
			Field: fieldPath(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return violations
}

// checkKeys はペイロードがJSONオブジェクトであり、そのキーが宣言済みの名前と
// 大文字小文字まで一致し、重複しないことを確認する。末尾の余分なデータもここで検出する。
// encoding/json はキーを大文字小文字を区別せずに照合するため、デコード前に確認する。
func (s *Schema[T]) checkKeys(payload []byte) []Violation {
	dec := json.NewDecoder(bytes.NewReader(payload))
	tok, err := dec.Token()
	if err != nil {
		return []Violation{decodeViolation(err)}
	}
	if tok != json.Delim('{') {
		return []Violation{{Rule: RuleType, Param: tokenKind(tok)}}
	}

	var violations []Violation
	seen := make(map[string]struct{}, len(s.fields))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return []Violation{decodeViolation(err)}
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return []Violation{decodeViolation(err)}
		}

		if _, dup := seen[key]; dup {
			violations = append(violations, Violation{Field: key, Rule: RuleDuplicateKey})
			continue
		}
		seen[key] = struct{}{}
		if _, ok := s.fields[key]; !ok {
			violations = append(violations, Violation{Field: key, Rule: RuleUnknownField})
		}
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return []Violation{{Rule: RuleSyntax}}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return []Violation{{Rule: RuleTrailingData}}
	}
	return violations
}

func tokenKind(tok json.Token) string {
	switch tok.(type) {
	case nil:
		return "null"
	case json.Delim:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	}
	return "number"
}

func decodeViolation(err error) Violation {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return Violation{Rule: RuleEmpty}
	case errors.As(err, &typeErr):
		return Violation{Field: typeErr.Field, Rule: RuleType, Param: typeErr.Value}
	case errors.As(err, &syntaxErr):
		return Violation{Rule: RuleSyntax, Param: strconv.FormatInt(syntaxErr.Offset, 10)}
	}
	// DisallowUnknownFields は専用のエラー型を持たない
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		if unquoted, uerr := strconv.Unquote(field); uerr == nil {
			field = unquoted
		}
		return Violation{Field: field, Rule: RuleUnknownField}
	}
	return Violation{Rule: RuleSyntax}
}

// fieldPath は "registerRequest.email" のような名前空間から型名を取り除く。
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
