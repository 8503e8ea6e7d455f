package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayKeepsAbsentSections(t *testing.T) {
	t.Parallel()
	base := DefaultSettings()
	base.Books["parimatch"] = true

	out, err := base.Overlay([]byte(`{"stake":{"aBook":" SingBet ","amountA":2000},"books":{"Pinnacle":true}}`))
	require.NoError(t, err)

	assert.Equal(t, "singbet", out.Stake.ABook)
	assert.Equal(t, int64(2000), out.Stake.AmountA)
	assert.True(t, out.Books["parimatch"], "existing book flag must survive")
	assert.True(t, out.Books["pinnacle"], "blob book key is normalized")
	assert.Equal(t, base.Notify, out.Notify)
	assert.Equal(t, base.Rebates, out.Rebates)

	// the receiver is untouched
	assert.Equal(t, "parimatch", base.Stake.ABook)
	assert.NotContains(t, base.Books, "pinnacle")
}

func TestOverlayRejectsGarbage(t *testing.T) {
	t.Parallel()
	base := DefaultSettings()
	out, err := base.Overlay([]byte(`{not json`))
	assert.Error(t, err)
	assert.Equal(t, base.Stake, out.Stake)
}

func TestRebateRateAndAlertPair(t *testing.T) {
	t.Parallel()
	s := DefaultSettings()
	s.Rebates.A = RebatePlatform{Book: "pinnacle", Rate: 0.01}
	s.Rebates.B = RebatePlatform{Book: "188bet", Rate: 0.005}

	assert.Equal(t, 0.01, s.RebateRate("Pinnacle"))
	assert.Equal(t, 0.005, s.RebateRate("188bet"))
	assert.Equal(t, 0.0, s.RebateRate("sbobet"))

	assert.True(t, s.IsAlertPair("pinnacle", "188bet"))
	assert.True(t, s.IsAlertPair("188bet", "pinnacle"))
	assert.False(t, s.IsAlertPair("pinnacle", "sbobet"))
	assert.False(t, s.IsAlertPair("pinnacle", "pinnacle"))
}

func TestEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ds     DatasourceSettings
		want   string
		wantOK bool
	}{
		{"mock wins", DatasourceSettings{UseMock: true, Mode: ModeCustom, URL: "wss://x"}, "ws://mock", true},
		{"custom url", DatasourceSettings{Mode: ModeCustom, URL: " wss://x "}, "wss://x", true},
		{"custom blank awaits config", DatasourceSettings{Mode: ModeCustom, URL: "   "}, "", false},
		{"auto uses default", DatasourceSettings{Mode: ModeAuto}, "wss://default", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tt.ds.Endpoint("wss://default", "ws://mock")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	bad := s.Clone()
	bad.Rebates.A.Rate = 1.5
	assert.Error(t, bad.Validate())

	bad = s.Clone()
	bad.Datasource.Transport = "carrier-pigeon"
	assert.Error(t, bad.Validate())

	bad = s.Clone()
	bad.Rebates.B.Scheme = "weekly"
	assert.Error(t, bad.Validate())
}
