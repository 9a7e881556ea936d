// Package main provides the amf-testgen fixture generator.
// It writes a corpus of binary AMF0 and AMF3 payloads, one value per
// file, together with a JSON sidecar describing each fixture. The
// corpus is useful for cross-checking other AMF implementations.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf0"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
)

// fixture is a single corpus entry. Exactly one of AMF0, AMF3 or Raw
// is set; Raw carries hand-built bytes for markers the encoder refuses
// to produce (movieclip, unsupported, recordset, a bare object-end).
type fixture struct {
	Name      string
	Version   int
	ClassName string
	AMF0      amf0.Value
	AMF3      amf3.Value
	Raw       []byte
}

// sidecar is the JSON description written next to each binary file.
type sidecar struct {
	Version   int    `json:"version"`
	Marker    int    `json:"marker"`
	ClassName string `json:"class_name,omitempty"`
	File      string `json:"file"`
}

func main() {
	outDir := flag.String("out", "testdata", "directory to write fixtures into")
	verbose := flag.Bool("v", false, "log each fixture as it is written")
	flag.Parse()

	if err := run(*outDir, *verbose); err != nil {
		log.Fatalf("amf-testgen: %v", err)
	}
}

func run(dir string, verbose bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	registry := amf.NewTraitRegistry()
	if err := registry.Register(amf.Trait{
		Alias:  "com.example.Point",
		Fields: []string{"x", "y"},
	}); err != nil {
		return err
	}

	all := fixtures()
	for _, f := range all {
		data, marker, err := encode(f, registry)
		if err != nil {
			return fmt.Errorf("fixture %s: %w", f.Name, err)
		}

		binName := f.Name + ".bin"
		if err := os.WriteFile(filepath.Join(dir, binName), data, 0o644); err != nil {
			return err
		}

		meta, err := json.MarshalIndent(sidecar{
			Version:   f.Version,
			Marker:    marker,
			ClassName: f.ClassName,
			File:      binName,
		}, "", "  ")
		if err != nil {
			return err
		}
		meta = append(meta, '\n')
		if err := os.WriteFile(filepath.Join(dir, f.Name+".json"), meta, 0o644); err != nil {
			return err
		}

		if verbose {
			log.Printf("wrote %s (%d bytes)", binName, len(data))
		}
	}

	log.Printf("wrote %d fixtures to %s", len(all), dir)
	return nil
}

// encode serializes a fixture and reports the leading marker byte.
func encode(f fixture, registry *amf.TraitRegistry) ([]byte, int, error) {
	if f.Raw != nil {
		return f.Raw, int(f.Raw[0]), nil
	}

	var buf bytes.Buffer
	switch f.Version {
	case 0:
		enc := amf0.NewEncoder(&buf)
		enc.Registry = registry
		if err := enc.Encode(f.AMF0); err != nil {
			return nil, 0, err
		}
		return buf.Bytes(), int(f.AMF0.Type()), nil
	case 3:
		enc := amf3.NewEncoder(&buf)
		enc.Registry = registry
		if err := enc.Encode(f.AMF3); err != nil {
			return nil, 0, err
		}
		return buf.Bytes(), int(f.AMF3.Type()), nil
	default:
		return nil, 0, fmt.Errorf("unknown version %d", f.Version)
	}
}

func fixtures() []fixture {
	greeting := amf3.String("Hello, world!")
	ja := amf3.String("こんにちは、世界！")

	point := &amf3.Object{
		Name: "com.example.Point",
		Sealed: []amf3.Pair{
			{Key: "x", Value: amf3.Double(1)},
			{Key: "y", Value: amf3.Double(2)},
		},
	}

	sharedObj := &amf0.Object{Pairs: []amf0.Pair{
		{Key: "index", Value: amf0.Number(0)},
		{Key: "msg", Value: amf0.String("hi")},
	}}

	return []fixture{
		// AMF0
		{Name: "amf0-number", Version: 0, AMF0: amf0.Number(1234.5)},
		{Name: "amf0-boolean-true", Version: 0, AMF0: amf0.Boolean(true)},
		{Name: "amf0-boolean-false", Version: 0, AMF0: amf0.Boolean(false)},
		{Name: "amf0-string", Version: 0, AMF0: amf0.String("Hello, world!")},
		{Name: "amf0-long-string", Version: 0, AMF0: amf0.String(strings.Repeat("a", 1<<16))},
		{Name: "amf0-object", Version: 0, AMF0: &amf0.Object{Pairs: []amf0.Pair{
			{Key: "msg", Value: amf0.String("Hello, world! こんにちは、世界！")},
			{Key: "index", Value: amf0.Number(0)},
		}}},
		{Name: "amf0-null", Version: 0, AMF0: amf0.Null{}},
		{Name: "amf0-undefined", Version: 0, AMF0: amf0.Undefined{}},
		{Name: "amf0-reference", Version: 0, AMF0: &amf0.StrictArray{Values: []amf0.Value{
			sharedObj, sharedObj,
		}}},
		{Name: "amf0-ecma-array", Version: 0, AMF0: &amf0.EcmaArray{Pairs: []amf0.Pair{
			{Key: "en", Value: amf0.String("Hello, world!")},
			{Key: "ja", Value: amf0.String("こんにちは、世界！")},
			{Key: "zh", Value: amf0.String("你好世界")},
		}}},
		{Name: "amf0-strict-array", Version: 0, AMF0: &amf0.StrictArray{Values: []amf0.Value{
			amf0.Number(1.1), amf0.Number(2), amf0.Number(3.3),
		}}},
		{Name: "amf0-date", Version: 0, AMF0: amf0.Date{Millis: 1111111111000}},
		{Name: "amf0-xml-doc", Version: 0, AMF0: amf0.XMLDocument("<parent><child prop=\"test\" /></parent>")},
		{Name: "amf0-typed-object", Version: 0, ClassName: "com.example.Point",
			AMF0: &amf0.Object{Name: "com.example.Point", Pairs: []amf0.Pair{
				{Key: "x", Value: amf0.Number(1)},
				{Key: "y", Value: amf0.Number(2)},
			}}},
		{Name: "amf0-avmplus", Version: 0, AMF0: amf0.AvmPlus{Value: amf3.Integer(5)}},
		{Name: "amf0-movieclip", Version: 0, Raw: []byte{amf0.MarkerMovieClip}},
		{Name: "amf0-unsupported", Version: 0, Raw: []byte{amf0.MarkerUnsupported}},
		{Name: "amf0-recordset", Version: 0, Raw: []byte{amf0.MarkerRecordSet}},
		{Name: "amf0-object-end", Version: 0, Raw: []byte{amf0.MarkerObjectEnd}},

		// AMF3
		{Name: "amf3-undefined", Version: 3, AMF3: amf3.Undefined{}},
		{Name: "amf3-null", Version: 3, AMF3: amf3.Null{}},
		{Name: "amf3-boolean-false", Version: 3, AMF3: amf3.Boolean(false)},
		{Name: "amf3-boolean-true", Version: 3, AMF3: amf3.Boolean(true)},
		{Name: "amf3-integer-0", Version: 3, AMF3: amf3.Integer(0)},
		{Name: "amf3-integer-128", Version: 3, AMF3: amf3.Integer(128)},
		{Name: "amf3-integer-16384", Version: 3, AMF3: amf3.Integer(16384)},
		{Name: "amf3-integer-max", Version: 3, AMF3: amf3.Integer(amf3.MaxInt29)},
		{Name: "amf3-integer-min", Version: 3, AMF3: amf3.Integer(amf3.MinInt29)},
		{Name: "amf3-double", Version: 3, AMF3: amf3.Double(3.5)},
		{Name: "amf3-string", Version: 3, AMF3: greeting},
		{Name: "amf3-string-ja", Version: 3, AMF3: ja},
		{Name: "amf3-xml-doc", Version: 3, AMF3: amf3.XMLDocument("<parent><child prop=\"test\" /></parent>")},
		{Name: "amf3-xml", Version: 3, AMF3: amf3.XML("<parent><child prop=\"test\"/></parent>")},
		{Name: "amf3-date", Version: 3, AMF3: &amf3.Date{Millis: 1111111111000}},
		{Name: "amf3-array-dense", Version: 3, AMF3: &amf3.Array{Dense: []amf3.Value{
			amf3.Double(1.1), amf3.Integer(2), amf3.Double(3.3),
		}}},
		{Name: "amf3-array-assoc", Version: 3, AMF3: &amf3.Array{
			Assoc: []amf3.Pair{
				{Key: "en", Value: greeting},
				{Key: "ja", Value: ja},
			},
			Dense: []amf3.Value{amf3.Integer(1), amf3.Integer(2)},
		}},
		{Name: "amf3-object-anonymous", Version: 3, AMF3: &amf3.Object{
			Dynamic: true,
			DynamicMembers: []amf3.Pair{
				{Key: "index", Value: amf3.Integer(0)},
				{Key: "msg", Value: greeting},
			},
		}},
		{Name: "amf3-object-typed", Version: 3, ClassName: "com.example.Point", AMF3: point},
		{Name: "amf3-byte-array", Version: 3, AMF3: &amf3.ByteArray{Data: []byte{0, 3, 5, 7}}},
		{Name: "amf3-vector-int", Version: 3, AMF3: &amf3.IntVector{Entries: []int32{-1, 0, 1}}},
		{Name: "amf3-vector-uint", Version: 3, AMF3: &amf3.UintVector{Entries: []uint32{0, 1, 2}}},
		{Name: "amf3-vector-double", Version: 3, AMF3: &amf3.DoubleVector{Entries: []float64{-1.5, 0, 1.5}}},
		{Name: "amf3-vector-object", Version: 3, ClassName: "com.example.Point",
			AMF3: &amf3.ObjectVector{Name: "com.example.Point", Entries: []amf3.Value{point}}},
		{Name: "amf3-dictionary", Version: 3, AMF3: &amf3.Dictionary{Entries: []amf3.Entry{
			{Key: amf3.String("en"), Value: greeting},
			{Key: amf3.String("ja"), Value: ja},
		}}},
	}
}
