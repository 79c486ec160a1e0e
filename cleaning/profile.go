package cleaning

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Profile cleans one kind of export in place.
type Profile interface {
	Name() string
	Apply(f *Frame, rep *Report) error
}

// Report summarizes a cleaning pass.
type Report struct {
	Profile string
	Input   string
	Output  string
	RowsIn  int
	RowsOut int
	// Dropped counts removed rows by reason.
	Dropped map[string]int
}

func (r *Report) drop(reason string, n int) {
	if n == 0 {
		return
	}
	if r.Dropped == nil {
		r.Dropped = make(map[string]int)
	}
	r.Dropped[reason] += n
}

// Generic only normalizes missing values. Booking and food-delivery exports
// need nothing more.
type Generic struct{}

func (Generic) Name() string { return "generic" }

func (Generic) Apply(f *Frame, _ *Report) error {
	slog.Info("replacing null values", slog.String("with", NullValue))
	f.mapAll(NormalizeNull)
	return nil
}

var profiles = map[string]func() Profile{
	"marketplace": func() Profile { return DefaultMarketplace() },
	"despegar":    func() Profile { return DefaultDespegar() },
	"booking":     func() Profile { return Generic{} },
	"pedidosya":   func() Profile { return Generic{} },
	"generic":     func() Profile { return Generic{} },
}

// ProfileNames lists the names accepted by ProfileByName.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProfileByName returns a profile with its default settings.
func ProfileByName(name string) (Profile, error) {
	build, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown cleaning profile %q (want one of %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return build(), nil
}

// CleanFile reads input, applies p, and writes the cleaned CSV next to it.
func CleanFile(input string, p Profile) (*Report, error) {
	rep := &Report{Profile: p.Name(), Input: input, Output: OutputPath(input)}

	slog.Info("reading input", slog.String("path", input))
	f, err := ReadFile(input)
	if err != nil {
		return nil, err
	}
	rep.RowsIn = f.Len()

	slog.Info("cleaning", slog.String("profile", p.Name()), slog.Int("rows", rep.RowsIn))
	if err := p.Apply(f, rep); err != nil {
		return nil, fmt.Errorf("%s profile: %w", p.Name(), err)
	}
	rep.RowsOut = f.Len()

	if err := WriteCSV(rep.Output, f); err != nil {
		return nil, fmt.Errorf("write cleaned data: %w", err)
	}
	slog.Info("cleaned data saved", slog.String("path", rep.Output), slog.Int("rows", rep.RowsOut))
	return rep, nil
}
