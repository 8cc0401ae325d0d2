package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// duration is a time.Duration written as "1m30s" in TOML.
type duration time.Duration

// MarshalTOML implements toml.MarshalerRec.
func (d duration) MarshalTOML() (interface{}, error) { return time.Duration(d).String(), nil }

// UnmarshalTOML implements toml.UnmarshalerRec.
func (d *duration) UnmarshalTOML(fn func(interface{}) error) error {
	var s string
	if err := fn(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

type mapConfig struct {
	Capacity int // 0 = per workload default
	CPUs     int // 0 = runtime.NumCPU()
	PerCPU   bool
}

type lossConfig struct {
	Size     int // map capacity
	Keys     int // keys inserted, one at a time
	HotStart int // keys HotStart..Size are looked up after every insert
}

type parallelConfig struct {
	Tasks       int // 0 = one per CPU
	StableElems int
	Repeats     int
	Seed        int64
}

type mixConfig struct {
	Backend  string // lrumap | golang-lru | arc | fastcache
	Workers  int
	Duration duration
	Reads    int // percent
	Keys     int
	ZipfS    float64
	ZipfV    float64
	Seed     int64
	Preload  int // 0 = capacity/2
}

type serverConfig struct {
	HTTP  string `toml:",omitempty"` // Prometheus /metrics address
	Pprof string `toml:",omitempty"`
}

type benchConfig struct {
	History  string `toml:",omitempty"` // pebble directory runs are recorded in
	Map      mapConfig
	Loss     lossConfig
	Parallel parallelConfig
	Mix      mixConfig
	Server   serverConfig
}

var defaultConfig = benchConfig{
	Loss: lossConfig{
		Size:     900,
		Keys:     1000,
		HotStart: 101,
	},
	Parallel: parallelConfig{
		StableElems: 1000,
		Repeats:     100_000,
		Seed:        1,
	},
	Mix: mixConfig{
		Backend:  "lrumap",
		Duration: duration(10 * time.Second),
		Reads:    80,
		Keys:     1_000_000,
		ZipfS:    1.1,
		ZipfV:    1.0,
		Seed:     1,
	},
}

func loadConfig(file string, cfg *benchConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func dumpConfig(cfg *benchConfig) ([]byte, error) {
	return tomlSettings.Marshal(cfg)
}
