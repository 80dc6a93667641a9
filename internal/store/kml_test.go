package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openroads/corridor/internal/lib/direction"
)

const kmlFixture = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <name>Interstates</name>
      <Placemark>
        <name>I-80 EB</name>
        <LineString>
          <coordinates>
            -91.5302,41.6611,0 -91.5100,41.6600,0 -91.4891,41.6544,0
          </coordinates>
        </LineString>
      </Placemark>
      <Placemark>
        <name>I-80 WB</name>
        <LineString>
          <coordinates>-91.4891,41.6546 -91.5102,41.6602 -91.5302,41.6613</coordinates>
        </LineString>
      </Placemark>
    </Folder>
    <Placemark>
      <name>Dubuque St</name>
      <LineString>
        <coordinates>-91.5350,41.6650 -91.5350,41.6700</coordinates>
      </LineString>
    </Placemark>
    <Placemark>
      <name>Rest Area Marker</name>
      <Point><coordinates>-91.5,41.66</coordinates></Point>
    </Placemark>
  </Document>
</kml>`

func TestImportKML(t *testing.T) {
	corridors, err := ImportKML(strings.NewReader(kmlFixture), "dot-feed")
	require.NoError(t, err)

	// The Point placemark carries no LineString and is skipped.
	require.Len(t, corridors, 3)

	eb := corridors[0]
	assert.Equal(t, "I-80", eb.Name)
	assert.Equal(t, direction.East, eb.Direction)
	assert.Len(t, eb.Line.Points, 3)
	assert.Equal(t, 41.6611, eb.Line.Points[0].Latitude)
	assert.Equal(t, -91.5302, eb.Line.Points[0].Longitude)
	assert.Equal(t, "dot-feed", eb.Source)
	assert.False(t, eb.UpdatedAt.IsZero())

	wb := corridors[1]
	assert.Equal(t, "I-80", wb.Name)
	assert.Equal(t, direction.West, wb.Direction)

	street := corridors[2]
	assert.Equal(t, "Dubuque St", street.Name)
	assert.Equal(t, direction.Undirected, street.Direction, "names without a direction token import undirected")
}

func TestImportKML_Malformed(t *testing.T) {
	_, err := ImportKML(strings.NewReader("not xml at all <"), "dot-feed")
	assert.Error(t, err)
}

func TestSplitDirectedName(t *testing.T) {
	tests := []struct {
		in   string
		name string
		dir  direction.Direction
	}{
		{"I-80 EB", "I-80", direction.East},
		{"I-80 WB", "I-80", direction.West},
		{"US 218 NORTHBOUND", "US 218", direction.North},
		{"I-80", "I-80", direction.Undirected},
		{"Dubuque St", "Dubuque St", direction.Undirected},
		{"  I-35 SB  ", "I-35", direction.South},
	}
	for _, tc := range tests {
		name, dir := splitDirectedName(tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.dir, dir, tc.in)
	}
}

func TestExportKML_RoundTrip(t *testing.T) {
	original, err := ImportKML(strings.NewReader(kmlFixture), "dot-feed")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportKML(&buf, original))
	assert.Contains(t, buf.String(), "I-80 E")
	assert.Contains(t, buf.String(), "-91.5302,41.6611")

	reimported, err := ImportKML(bytes.NewReader(buf.Bytes()), "export")
	require.NoError(t, err)
	require.Len(t, reimported, len(original))
	for i := range original {
		assert.Equal(t, original[i].Name, reimported[i].Name)
		assert.Equal(t, original[i].Direction, reimported[i].Direction)
		assert.Equal(t, original[i].Line.Points, reimported[i].Line.Points)
	}
}
