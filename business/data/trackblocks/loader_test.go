package trackblocks

import (
	"reflect"
	"strings"
	"testing"

	"github.com/matryer/is"
)

const testKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <name>blocks</name>
      <Placemark>
        <name>101 JUNCTION [EAST,WEST] +901</name>
        <Polygon><outerBoundaryIs><LinearRing><coordinates>
          174.76,-36.85,0 174.77,-36.85,0 174.77,-36.84,0 174.76,-36.84,0
        </coordinates></LinearRing></outerBoundaryIs></Polygon>
      </Placemark>
      <Folder>
        <name>stations</name>
        <Placemark>
          <name>110</name>
          <description>111, "9100", Default, 90deg
112, 9101;9102, Default, 270deg
113, [STH]</description>
          <Polygon><outerBoundaryIs><LinearRing><coordinates>
            174.70,-36.90,0 174.71,-36.90,0 174.71,-36.89,0 174.70,-36.89,0
          </coordinates></LinearRing></outerBoundaryIs></Polygon>
        </Placemark>
      </Folder>
      <Placemark>
        <name>Depot area</name>
        <Polygon><outerBoundaryIs><LinearRing><coordinates>
          174.1,-36.1,0 174.2,-36.1,0 174.2,-36.2,0
        </coordinates></LinearRing></outerBoundaryIs></Polygon>
      </Placemark>
    </Folder>
  </Document>
</kml>`

func TestLoad(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()

	m, err := Load(logWriter.log, strings.NewReader(testKML))
	is.NoErr(err)
	is.Equal(2, m.Len())

	junction := m.Get(101)
	is.True(junction != nil)
	is.Equal("101 JUNCTION [EAST,WEST] +901", junction.Name)
	is.Equal(901, *junction.AltBlock)
	is.Equal([]string{"EAST", "WEST"}, junction.Routes)
	is.True(junction.Priority)
	is.Equal(4, len(junction.Polygon))
	is.Equal(-36.85, junction.Polygon[0].Lat)
	is.Equal(174.76, junction.Polygon[0].Lon)

	station := m.Get(110)
	is.True(station != nil)
	is.True(station.AltBlock == nil)
	is.True(!station.Priority)
	is.Equal(3, len(station.Platforms))

	first := station.Platforms[0]
	is.Equal(111, first.BlockNumber)
	is.Equal([]string{"9100"}, first.StopIDs)
	is.True(first.IsDefault)
	is.Equal(90.0, *first.Bearing)

	second := station.Platforms[1]
	is.Equal(112, second.BlockNumber)
	is.Equal([]string{"9101", "9102"}, second.StopIDs)
	is.Equal(270.0, *second.Bearing)

	third := station.Platforms[2]
	is.Equal(113, third.BlockNumber)
	is.Equal([]string{"STH"}, third.Routes)
	is.True(third.Bearing == nil)

	// the depot placemark has no block number and must be skipped loudly
	is.True(m.Get(0) == nil)
	is.True(logWriter.containsLine("no block number"))
}

func TestLoadCanonicalOrderFromKML(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()

	m, err := Load(logWriter.log, strings.NewReader(testKML))
	is.NoErr(err)

	var got []int
	for _, block := range m.Ordered() {
		got = append(got, block.BlockNumber)
	}
	// 101 carries routes and a priority name, 110 has neither
	is.Equal([]int{101, 110}, got)
}

func TestLoadWarnsOnSuspectBearings(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	kml := `<kml><Document><Folder><Placemark>
      <name>120</name>
      <description>121, Default, 90deg
122, Default, 100deg</description>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        174.70,-36.90,0 174.71,-36.90,0 174.71,-36.89,0
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark></Folder></Document></kml>`

	_, err := Load(logWriter.log, strings.NewReader(kml))
	is.NoErr(err)
	is.True(logWriter.containsLine("expected equal or opposite"))
}

func TestLoadWarnsOnPlatformNumberCollision(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	kml := `<kml><Document><Folder>
    <Placemark>
      <name>130</name>
      <description>131, Default</description>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        174.70,-36.90,0 174.71,-36.90,0 174.71,-36.89,0
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
    <Placemark>
      <name>131</name>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        174.72,-36.90,0 174.73,-36.90,0 174.73,-36.89,0
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
  </Folder></Document></kml>`

	_, err := Load(logWriter.log, strings.NewReader(kml))
	is.NoErr(err)
	is.True(logWriter.containsLine("collides with block 131"))
}

func TestLoadRejectsMalformedXML(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	_, err := Load(logWriter.log, strings.NewReader("<kml><Document>"))
	is.True(err != nil)
}

func TestParsePlatformLine(t *testing.T) {
	type args struct {
		line string
	}
	tests := []struct {
		name string
		args args
		want *Platform
	}{
		{
			name: "full line",
			args: args{line: `111, "9100", Default, 90deg, [EAST,WEST]`},
			want: &Platform{
				BlockNumber: 111,
				StopIDs:     []string{"9100"},
				IsDefault:   true,
				Bearing:     float64Ptr(90),
				Routes:      []string{"EAST", "WEST"},
			},
		},
		{
			name: "semicolon stop ids without quotes",
			args: args{line: "112, 9101;9102"},
			want: &Platform{BlockNumber: 112, StopIDs: []string{"9101", "9102"}},
		},
		{
			name: "negative bearing normalized",
			args: args{line: "113, -45deg"},
			want: &Platform{BlockNumber: 113, Bearing: float64Ptr(315)},
		},
		{
			name: "full turn bearing normalized to zero",
			args: args{line: "114, 360deg"},
			want: &Platform{BlockNumber: 114, Bearing: float64Ptr(0)},
		},
		{
			name: "unrecognized tokens ignored",
			args: args{line: "115, Platform 1 north end"},
			want: &Platform{BlockNumber: 115},
		},
		{
			name: "no digits in first field",
			args: args{line: "main, Default"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logWriter := makeTestLogWriter()
			if got := parsePlatformLine(logWriter.log, "test", tt.args.line); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePlatformLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSplitOutsideBrackets(t *testing.T) {
	type args struct {
		line string
	}
	tests := []struct {
		name string
		args args
		want []string
	}{
		{
			name: "commas inside brackets kept together",
			args: args{line: "1,[A,B],C"},
			want: []string{"1", "[A,B]", "C"},
		},
		{
			name: "no brackets",
			args: args{line: "1,2,3"},
			want: []string{"1", "2", "3"},
		},
		{
			name: "single field",
			args: args{line: "solo"},
			want: []string{"solo"},
		},
		{
			name: "unbalanced close bracket does not underflow",
			args: args{line: "1],2"},
			want: []string{"1]", "2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitOutsideBrackets(tt.args.line); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitOutsideBrackets() = %v, want %v", got, tt.want)
			}
		})
	}
}
