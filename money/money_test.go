package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "12", want: 1200},
		{in: "12.5", want: 1250},
		{in: "12.05", want: 1205},
		{in: "-0.75", want: -75},
		{in: ".5", want: 50},
		{in: "+3", want: 300},
		{in: "1.234", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: ".", wantErr: true},
		{in: "1.-5", wantErr: true},
		{in: "1.+5", wantErr: true},
		{in: "--5", wantErr: true},
		{in: "-+5", wantErr: true},
		{in: "1. 5", wantErr: true},
		{in: "1_000", wantErr: true},
		{in: "92233720368547758.07", want: Amount(math.MaxInt64)},
		{in: "-92233720368547758.07", want: -Amount(math.MaxInt64)},
		{in: "92233720368547758.08", wantErr: true},
		{in: "92233720368547759", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "12.50", Amount(1250).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-1.01", Amount(-101).String())
}

func TestFromFloat(t *testing.T) {
	assert.Equal(t, Amount(1000), FromFloat(10))
	assert.Equal(t, Amount(33), FromFloat(0.325))
	assert.Equal(t, Amount(-33), FromFloat(-0.325))
}

func TestMulBps(t *testing.T) {
	assert.Equal(t, Amount(25), Amount(1000).MulBps(250))
	assert.Equal(t, Amount(0), Amount(3).MulBps(100))
}

func TestSplitKeepsTotal(t *testing.T) {
	amounts := []Amount{1, 7, 100, 101, 999, 1234567}
	for _, a := range amounts {
		shares, err := a.Split(1, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, a, Sum(shares...), "split of %d lost value", a)
	}
}

func TestSplitRemainderGoesLast(t *testing.T) {
	shares, err := Amount(100).Split(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []Amount{33, 33, 34}, shares)
}

func TestSplitRejectsBadWeights(t *testing.T) {
	_, err := Amount(100).Split()
	assert.ErrorIs(t, err, ErrNoWeights)

	_, err = Amount(100).Split(0, 0)
	assert.ErrorIs(t, err, ErrNoWeights)

	_, err = Amount(100).Split(1, -1)
	assert.ErrorIs(t, err, ErrNoWeights)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(10)
	require.NoError(t, err)
	assert.Equal(t, Amount(1000), v)

	v, err = FromAny(2.5)
	require.NoError(t, err)
	assert.Equal(t, Amount(250), v)

	v, err = FromAny("1.10")
	require.NoError(t, err)
	assert.Equal(t, Amount(110), v)

	v, err = FromAny(Amount(7))
	require.NoError(t, err)
	assert.Equal(t, Amount(7), v)

	_, err = FromAny(nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = FromAny([]int{1})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestJSONEncoding(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}
	b, err := json.Marshal(payload{Amount: 1050})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":10.50}`, string(b))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"3.25"}`), &p))
	assert.Equal(t, Amount(325), p.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":0.125}`), &p))
	assert.Equal(t, Amount(13), p.Amount)

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"ten"}`), &p))
}
