package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNextScreen tests the transition registry lookups
func TestNextScreen(t *testing.T) {
	tests := []struct {
		name     string
		family   TaskFamily
		current  Screen
		expected Screen
	}{
		{
			name:     "BSS not started maps to first stage",
			family:   FamilyBSS,
			current:  "",
			expected: ScreenBSSStart,
		},
		{
			name:     "BSS start to arrived",
			family:   FamilyBSS,
			current:  ScreenBSSStart,
			expected: ScreenBSSArrived,
		},
		{
			name:     "BSS arrived to save amount",
			family:   FamilyBSS,
			current:  ScreenBSSArrived,
			expected: ScreenBSSSaveAmount,
		},
		{
			name:     "BSS save amount to loaded",
			family:   FamilyBSS,
			current:  ScreenBSSSaveAmount,
			expected: ScreenBSSLoaded,
		},
		{
			name:     "BSS loaded to arrived delivery",
			family:   FamilyBSS,
			current:  ScreenBSSLoaded,
			expected: ScreenBSSArrivedDelivery,
		},
		{
			name:     "BSS arrived delivery to unloaded",
			family:   FamilyBSS,
			current:  ScreenBSSArrivedDelivery,
			expected: ScreenBSSUnloaded,
		},
		{
			name:     "BSS unloaded to completed stage",
			family:   FamilyBSS,
			current:  ScreenBSSUnloaded,
			expected: ScreenBSSCompleted,
		},
		{
			name:     "ATM not started maps to first stage",
			family:   FamilyATM,
			current:  "",
			expected: ScreenATMStart,
		},
		{
			name:     "ATM arrived to loaded at bank",
			family:   FamilyATM,
			current:  ScreenATMArrived,
			expected: ScreenATMLoadedAtBank,
		},
		{
			name:     "ATM loaded at bank to arrived delivery",
			family:   FamilyATM,
			current:  ScreenATMLoadedAtBank,
			expected: ScreenATMArrivedDelivery,
		},
		{
			name:     "ATM arrived delivery to loaded at atm",
			family:   FamilyATM,
			current:  ScreenATMArrivedDelivery,
			expected: ScreenATMLoadedAtAtm,
		},
		{
			name:     "ATM loaded at atm to unloaded at atm",
			family:   FamilyATM,
			current:  ScreenATMLoadedAtAtm,
			expected: ScreenATMUnloadedAtAtm,
		},
		{
			name:     "CIT not started defaults to second stage",
			family:   FamilyCIT,
			current:  "",
			expected: "CIT-2",
		},
		{
			name:     "CIT numeric increment",
			family:   FamilyCIT,
			current:  "CIT-2",
			expected: "CIT-3",
		},
		{
			name:     "CIT larger numeric increment",
			family:   FamilyCIT,
			current:  "CIT-7",
			expected: "CIT-8",
		},
		{
			name:     "CIT unrecognized suffix defaults to second stage",
			family:   FamilyCIT,
			current:  "CIT-garbage",
			expected: "CIT-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextScreen(tt.family, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

// TestNextScreenTerminalLookup tests that no transition is defined out of a
// terminal marker
func TestNextScreenTerminalLookup(t *testing.T) {
	for _, screen := range []Screen{ScreenCompleted, ScreenFailed} {
		t.Run(string(screen), func(t *testing.T) {
			_, err := NextScreen(FamilyBSS, screen)
			require.Error(t, err)

			var lookupErr *TerminalLookupError
			require.ErrorAs(t, err, &lookupErr)
			assert.Equal(t, screen, lookupErr.Screen)
		})
	}
}

// TestNextScreenUnknown tests lookups with screens outside the ordering
func TestNextScreenUnknown(t *testing.T) {
	_, err := NextScreen(FamilyBSS, "ATM-Start")
	require.Error(t, err)

	var unknownErr *UnknownScreenError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, FamilyBSS, unknownErr.Family)
	assert.Equal(t, Screen("ATM-Start"), unknownErr.Screen)
}

// TestScreenIsTerminal tests the terminal markers
func TestScreenIsTerminal(t *testing.T) {
	tests := []struct {
		screen   Screen
		terminal bool
	}{
		{ScreenCompleted, true},
		{ScreenFailed, true},
		{ScreenBSSCompleted, true},
		{ScreenATMCompleted, true},
		{ScreenBSSStart, false},
		{ScreenATMUnloadedAtAtm, false},
		{"CIT-2", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.screen), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.screen.IsTerminal())
		})
	}
}

// TestUnloadedMarker tests the partial-completion holding stage per family
func TestUnloadedMarker(t *testing.T) {
	marker, ok := UnloadedMarker(FamilyBSS)
	require.True(t, ok)
	assert.Equal(t, ScreenBSSUnloaded, marker)

	marker, ok = UnloadedMarker(FamilyATM)
	require.True(t, ok)
	assert.Equal(t, ScreenATMUnloadedAtAtm, marker)

	_, ok = UnloadedMarker(FamilyCIT)
	assert.False(t, ok)
}

// TestTaskFamilyIsValid tests family validation
func TestTaskFamilyIsValid(t *testing.T) {
	assert.True(t, FamilyBSS.IsValid())
	assert.True(t, FamilyATM.IsValid())
	assert.True(t, FamilyCIT.IsValid())
	assert.False(t, TaskFamily("VAN").IsValid())
	assert.False(t, TaskFamily("").IsValid())
}
