package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// 内置工具名称.
const (
	ToolGetWeather = "get_weather"
	ToolGetTime    = "get_time"
)

var weatherConditions = []string{"sunny", "cloudy", "rainy", "stormy"}

// Builtins 提供示例天气/时间工具. Now 与 Rand 可在测试中替换.
type Builtins struct {
	Now  func() time.Time
	Rand *rand.Rand

	mu sync.Mutex // guards Rand, tools run concurrently
}

// NewBuiltins returns builtins backed by the wall clock and a random source.
func NewBuiltins() *Builtins {
	return &Builtins{
		Now:  time.Now,
		Rand: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

type weatherArgs struct {
	Location string `json:"location"`
}

// GetWeather reports a made-up forecast: one of four conditions and a 10 to 30 °C high.
func (b *Builtins) GetWeather(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in weatherArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return nil, fmt.Errorf("location is required")
	}
	b.mu.Lock()
	condition := weatherConditions[b.Rand.IntN(len(weatherConditions))]
	high := 10 + b.Rand.IntN(21)
	b.mu.Unlock()
	return json.Marshal(fmt.Sprintf("The weather in %s is %s with a high of %d°C.", location, condition, high))
}

// GetTime reports the current UTC time.
func (b *Builtins) GetTime(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	now := b.Now().UTC()
	return json.Marshal(fmt.Sprintf("The current UTC time is %s.", now.Format(time.DateTime)))
}

// Register 把 names 中列出的内置工具注册到 registry. 未知名称返回错误.
func (b *Builtins) Register(registry ToolRegistry, names []string) error {
	for _, name := range names {
		var (
			fn   ToolFunc
			meta ToolMetadata
		)
		switch name {
		case ToolGetWeather:
			fn = b.GetWeather
			meta = ToolMetadata{
				Source: "builtin",
				Schema: ToolSchemaFor(ToolGetWeather, "Get the weather for a given location.",
					`{"type":"object","properties":{"location":{"type":"string","description":"The location to get the weather for."}},"required":["location"]}`),
			}
		case ToolGetTime:
			fn = b.GetTime
			meta = ToolMetadata{
				Source: "builtin",
				Schema: ToolSchemaFor(ToolGetTime, "Get the current UTC time.", `{"type":"object","properties":{}}`),
			}
		default:
			return fmt.Errorf("unknown builtin tool %q", name)
		}
		if err := registry.Register(name, fn, meta); err != nil {
			return err
		}
	}
	return nil
}
