// Package protocol 解析与合成 JSON 负载。
//
// 转发的负载始终按原始字节发送，这里只解码路由需要的字段。
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Type 消息类型
type Type string

const (
	TypeHello             Type = "env-hello"
	TypeStart             Type = "env-start"
	TypeAction            Type = "env-action"
	TypeMeasurement       Type = "env-measurement"
	TypeEnd               Type = "env-end"
	TypeError             Type = "env-error"
	TypeNoAvailableWorker Type = "no-available-worker"
)

// Known 是否为协议定义的类型
func (t Type) Known() bool {
	switch t {
	case TypeHello, TypeStart, TypeAction, TypeMeasurement, TypeEnd, TypeError, TypeNoAvailableWorker:
		return true
	}
	return false
}

var (
	ErrNotJSON      = errors.New("protocol: payload is not a JSON object")
	ErrMissingType  = errors.New("protocol: missing type field")
	ErrInvalidField = errors.New("protocol: invalid routing field")
)

// Header 路由所需字段
type Header struct {
	Type     Type     `json:"type"`
	Env      string   `json:"env,omitempty"`
	EnvList  []string `json:"env_list,omitempty"`
	ErrorMsg string   `json:"error_msg,omitempty"`
}

// rawHeader 其余字段保持原始 JSON，只有对应类型才继续解码
type rawHeader struct {
	Type     Type            `json:"type"`
	Env      json.RawMessage `json:"env"`
	EnvList  json.RawMessage `json:"env_list"`
	ErrorMsg json.RawMessage `json:"error_msg"`
}

// Decode 解码负载头部。env 只在 env-start 中解码，env_list 只在 env-hello 中解码，
// 其他消息的同名字段属于不透明内容，类型不限
func Decode(payload []byte) (Header, error) {
	var raw rawHeader
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Header{}, errors.Mark(errors.Wrap(err, "decode payload"), ErrNotJSON)
	}
	if raw.Type == "" {
		return Header{}, ErrMissingType
	}

	h := Header{Type: raw.Type}
	switch raw.Type {
	case TypeStart:
		if err := decodeField(raw.Env, &h.Env); err != nil {
			return Header{}, errors.Mark(errors.Wrap(err, "env"), ErrInvalidField)
		}
	case TypeHello:
		if err := decodeField(raw.EnvList, &h.EnvList); err != nil {
			return Header{}, errors.Mark(errors.Wrap(err, "env_list"), ErrInvalidField)
		}
	case TypeError:
		h.ErrorMsg = looseString(raw.ErrorMsg)
	}
	return h, nil
}

func decodeField(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// looseString 仅用于日志：字符串取其值，其他 JSON 保留原文
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ErrorPayload 合成 env-error 消息
func ErrorPayload(msg string) []byte {
	b, _ := json.Marshal(Header{Type: TypeError, ErrorMsg: msg})
	return b
}

// IdleWorker no-available-worker 中列出的空闲 worker
type IdleWorker struct {
	Worker  string   `json:"worker"`
	EnvList []string `json:"env_list"`
}

type noAvailableWorker struct {
	Type             Type         `json:"type"`
	Env              string       `json:"env"`
	Msg              string       `json:"msg"`
	AvailableWorkers []IdleWorker `json:"available_workers"`
}

// NoAvailableWorkerPayload 合成 no-available-worker 消息，空闲列表为空时输出 []
func NoAvailableWorkerPayload(env string, idle []IdleWorker) []byte {
	if idle == nil {
		idle = []IdleWorker{}
	}
	for i := range idle {
		if idle[i].EnvList == nil {
			idle[i].EnvList = []string{}
		}
	}
	b, _ := json.Marshal(noAvailableWorker{
		Type:             TypeNoAvailableWorker,
		Env:              env,
		Msg:              fmt.Sprintf("No available workers for env: %s. Available workers and their env list are attached.", env),
		AvailableWorkers: idle,
	})
	return b
}
