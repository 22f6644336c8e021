package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBarsCSV(t *testing.T) {
	in := `timestamp,open,high,low,close,volume
2024-03-04T15:00:00Z,10,11,9,10.5,100
1709564460,10.5,12,10,11.5,120
`
	bars, err := readBarsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 1, 0, 0, time.UTC), bars[1].Timestamp)
	assert.Equal(t, 11.5, bars[1].Close)
}

func TestReadBarsCSVErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "timestamp,open,high,low,close,volume\n",
		"bad timestamp":  "2024-03-04T15:00:00Z,10,11,9,10,1\nnope,1,1,1,1,1\n",
		"bad number":     "2024-03-04T15:00:00Z,10,x,9,10,1\n",
		"high below low": "2024-03-04T15:00:00Z,10,8,9,10,1\n",
		"short row":      "2024-03-04T15:00:00Z,10,11\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := readBarsCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}
