package ledwire

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/matryer/is"
)

func TestColorTableOrder(t *testing.T) {
	is := is.New(t)
	// route order in the json must drive color index assignment
	data := []byte(`{"WEST":[0,148,68],"ONE":[0,174,239],"EAST":[255,221,0],"STH":[237,28,36]}`)

	var table ColorTable
	err := json.Unmarshal(data, &table)
	is.NoErr(err)
	is.Equal(4, table.Len())

	wantIDs := map[string]int{"WEST": 0, "ONE": 1, "EAST": 2, "STH": 3}
	if got := table.RouteColorIDs(); !reflect.DeepEqual(got, wantIDs) {
		t.Errorf("RouteColorIDs() = %v, want %v", got, wantIDs)
	}

	wantColors := map[int]RGB{
		0: {0, 148, 68},
		1: {0, 174, 239},
		2: {255, 221, 0},
		3: {237, 28, 36},
	}
	if got := table.ColorsByID(); !reflect.DeepEqual(got, wantColors) {
		t.Errorf("ColorsByID() = %v, want %v", got, wantColors)
	}
}

func TestColorTableRoundTrip(t *testing.T) {
	is := is.New(t)
	data := []byte(`{"WEST":[0,148,68],"ONE":[0,174,239],"EAST":[255,221,0]}`)

	var table ColorTable
	is.NoErr(json.Unmarshal(data, &table))

	out, err := json.Marshal(table)
	is.NoErr(err)
	is.Equal(string(data), string(out))
}

func TestColorTableRejectsNonObject(t *testing.T) {
	is := is.New(t)
	var table ColorTable
	err := json.Unmarshal([]byte(`[[0,1,2]]`), &table)
	is.True(err != nil)
}

func TestRemap(t *testing.T) {
	rules := []RemapRule{
		{Start: 300, End: 399, Offset: -100},
		{Start: 500, End: 599, Offset: 25},
	}
	type args struct {
		rules []RemapRule
		block int
	}
	tests := []struct {
		name string
		args args
		want int
	}{
		{name: "inside first range", args: args{rules, 301}, want: 201},
		{name: "start boundary", args: args{rules, 300}, want: 200},
		{name: "end boundary", args: args{rules, 399}, want: 299},
		{name: "inside second range", args: args{rules, 550}, want: 575},
		{name: "outside every range", args: args{rules, 123}, want: 123},
		{name: "no rules", args: args{nil, 301}, want: 301},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remap(tt.args.rules, tt.args.block); got != tt.want {
				t.Errorf("Remap() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemapIdempotentWhenRangesDisjointFromOutputs(t *testing.T) {
	// outputs of the rule land in 200..299, which no rule covers, so applying
	// the remap twice changes nothing more
	rules := []RemapRule{{Start: 300, End: 399, Offset: -100}}
	for block := 250; block < 450; block++ {
		once := Remap(rules, block)
		twice := Remap(rules, once)
		if once != twice {
			t.Errorf("Remap(Remap(%d)) = %d, want %d", block, twice, once)
		}
	}
}

func TestOutputRoundTrip(t *testing.T) {
	is := is.New(t)
	output := Output{
		Version:   "v2",
		Timestamp: 1700000000,
		Update:    20,
		Colors: map[int]RGB{
			0: {0, 148, 68},
			1: {255, 221, 0},
		},
		Updates: []Update{
			{B: [2]int{101, 102}, C: 0, T: 0},
			{B: [2]int{201, 202}, C: 1, T: 7},
		},
	}

	data, err := json.Marshal(output)
	is.NoErr(err)

	var decoded Output
	is.NoErr(json.Unmarshal(data, &decoded))
	if !reflect.DeepEqual(output, decoded) {
		t.Errorf("round trip = %+v, want %+v", decoded, output)
	}
}

func TestOutputWireFieldNames(t *testing.T) {
	is := is.New(t)
	output := Output{
		Version:   "v1",
		Timestamp: 1700000000,
		Update:    20,
		Colors:    map[int]RGB{0: {1, 2, 3}},
		Updates:   []Update{{B: [2]int{5, 6}, C: 0, T: 3}},
	}
	data, err := json.Marshal(output)
	is.NoErr(err)
	// board firmware parses these exact names
	is.Equal(`{"version":"v1","timestamp":1700000000,"update":20,"colors":{"0":[1,2,3]},"updates":[{"b":[5,6],"c":0,"t":3}]}`, string(data))
}
