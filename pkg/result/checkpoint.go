package result

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/oisee/gshare-model/pkg/predictor"
)

// SaveState writes predictor state to a file.
func SaveState(path string, s *predictor.State) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("result: encode state: %w", err)
	}
	return f.Close()
}

// LoadState loads predictor state from a file.
func LoadState(path string) (*predictor.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var s predictor.State
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("result: decode state %s: %w", path, err)
	}
	for i, c := range s.PHT {
		if !c.Valid() {
			return nil, fmt.Errorf("result: %s: slot %d holds invalid counter %d", path, i, c)
		}
	}
	s.GHR &= predictor.FieldMask
	return &s, nil
}
