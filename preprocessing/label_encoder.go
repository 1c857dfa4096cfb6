package preprocessing

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/pkg/errors"
)

// LabelEncoder はscikit-learn互換のラベルエンコーダー
// カテゴリ値をソート済みクラス一覧のインデックス（0始まりの連番）に変換する。
// 同じ値の集合からは入力順序に関係なく同じ符号化が得られる
type LabelEncoder struct {
	State *model.StateManager

	// Classes はソート済みの一意なクラス
	Classes []string

	index map[string]int
}

// NewLabelEncoder は新しいLabelEncoderを作成する
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{State: model.NewStateManager()}
}

// IsFitted は学習済みかどうかを返す
func (e *LabelEncoder) IsFitted() bool {
	return e != nil && e.State.IsFitted()
}

// Fit は値の一覧からクラスを学習する
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewValueError("LabelEncoder.Fit", errors.ErrEmptyData.Error())
	}

	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)

	if e.State == nil {
		e.State = model.NewStateManager()
	}
	e.Classes = classes
	e.rebuildIndex()
	e.State.SetDimensions(1, len(values))
	e.State.SetFitted()
	return nil
}

// Transform はクラスを符号に変換する。学習時に存在しなかった値は
// UnknownCategoryErrorになる（Fieldは空）
func (e *LabelEncoder) Transform(value string) (int, error) {
	if !e.IsFitted() {
		return 0, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	code, ok := e.index[value]
	if !ok {
		return 0, errors.NewUnknownCategoryError("", value)
	}
	return code, nil
}

// InverseTransform は符号をクラスに戻す
func (e *LabelEncoder) InverseTransform(code int) (string, error) {
	if !e.IsFitted() {
		return "", errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}
	if code < 0 || code >= len(e.Classes) {
		return "", errors.NewValidationError("code", fmt.Sprintf("must be in [0, %d)", len(e.Classes)), code)
	}
	return e.Classes[code], nil
}

// NClasses は学習済みのクラス数を返す
func (e *LabelEncoder) NClasses() int {
	if e == nil {
		return 0
	}
	return len(e.Classes)
}

func (e *LabelEncoder) rebuildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

type labelEncoderGob struct {
	State   *model.StateManager
	Classes []string
}

// GobEncode implements gob.GobEncoder.
func (e *LabelEncoder) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(labelEncoderGob{State: e.State, Classes: e.Classes}); err != nil {
		return nil, errors.Wrap(err, "encode LabelEncoder")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder. The reverse index is rebuilt.
func (e *LabelEncoder) GobDecode(data []byte) error {
	var g labelEncoderGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return errors.Wrap(err, "decode LabelEncoder")
	}
	e.State = g.State
	e.Classes = g.Classes
	e.rebuildIndex()
	return nil
}

// EncoderRegistry はカテゴリ列名からLabelEncoderへの対応表
// 学習時に一度だけ作成し、以降は読み取り専用で使う
type EncoderRegistry struct {
	Encoders map[string]*LabelEncoder
}

// FitEncoderRegistry は列ごとの値の一覧からレジストリを学習する
//
// 使用例:
//
//	reg, err := preprocessing.FitEncoderRegistry(map[string][]string{
//	    "transport_type":   {"cab", "auto", "bike"},
//	    "service_provider": {"obeer", "yela"},
//	})
//	code, err := reg.Encode("transport_type", "cab") // 2
func FitEncoderRegistry(columns map[string][]string) (*EncoderRegistry, error) {
	if len(columns) == 0 {
		return nil, errors.NewValueError("FitEncoderRegistry", errors.ErrEmptyData.Error())
	}
	reg := &EncoderRegistry{Encoders: make(map[string]*LabelEncoder, len(columns))}
	for field, values := range columns {
		enc := NewLabelEncoder()
		if err := enc.Fit(values); err != nil {
			return nil, errors.Wrapf(err, "fit encoder %q", field)
		}
		reg.Encoders[field] = enc
	}
	return reg, nil
}

// Encode はfieldの値を符号に変換する
// 未知の列はValidationError、未知の値はUnknownCategoryErrorを返す
func (r *EncoderRegistry) Encode(field, value string) (int, error) {
	enc, ok := r.Encoder(field)
	if !ok {
		return 0, errors.NewValidationError("field", "no encoder registered", field)
	}
	if !enc.IsFitted() {
		return 0, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	code, ok := enc.index[value]
	if !ok {
		return 0, errors.NewUnknownCategoryError(field, value)
	}
	return code, nil
}

// Encoder はfieldのエンコーダーを返す
func (r *EncoderRegistry) Encoder(field string) (*LabelEncoder, bool) {
	if r == nil {
		return nil, false
	}
	enc, ok := r.Encoders[field]
	return enc, ok && enc != nil
}

// Classes はfieldの学習済みクラスを返す
func (r *EncoderRegistry) Classes(field string) []string {
	enc, ok := r.Encoder(field)
	if !ok {
		return nil
	}
	return append([]string(nil), enc.Classes...)
}

// Fields は登録済みの列名をソートして返す
func (r *EncoderRegistry) Fields() []string {
	if r == nil {
		return nil
	}
	fields := make([]string, 0, len(r.Encoders))
	for f := range r.Encoders {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
