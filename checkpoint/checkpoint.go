// Package checkpoint saves and loads named parameter sets.
//
// Two on-disk layouts are understood: a Wrapped record holding the parameters
// under StateDict alongside free-form metadata, and a bare StateDict. Both are gob encoded.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"io"
	"io/ioutil"
	"os"
	"sort"

	"github.com/gorgonia/crl/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// StateDict maps parameter names to their values.
type StateDict map[string]*tensor.Dense

// Wrapped is a StateDict with metadata (epoch, architecture, ...).
type Wrapped struct {
	StateDict StateDict
	Meta      map[string]string
}

// Names returns the parameter names, sorted.
func (sd StateDict) Names() []string {
	retVal := make([]string, 0, len(sd))
	for k := range sd {
		retVal = append(retVal, k)
	}
	sort.Strings(retVal)
	return retVal
}

// Save writes sd in the bare layout.
func Save(w io.Writer, sd StateDict) error {
	return errors.WithStack(gob.NewEncoder(w).Encode(sd))
}

// SaveWrapped writes sd in the wrapped layout.
func SaveWrapped(w io.Writer, sd StateDict, meta map[string]string) error {
	return errors.WithStack(gob.NewEncoder(w).Encode(Wrapped{StateDict: sd, Meta: meta}))
}

// SaveFile writes sd to filename, wrapped if meta is not nil.
func SaveFile(filename string, sd StateDict, meta map[string]string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if meta != nil {
		err = SaveWrapped(f, sd, meta)
	} else {
		err = Save(f, sd)
	}
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "saving %s", filename)
	}
	return f.Close()
}

// Load reads a parameter set in either layout. The wrapped layout is tried first.
func Load(r io.Reader) (StateDict, error) {
	p, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var wrapped Wrapped
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&wrapped); err == nil && len(wrapped.StateDict) > 0 {
		return wrapped.StateDict, nil
	}

	var bare StateDict
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&bare); err != nil {
		return nil, errors.Wrap(err, "not a wrapped or bare parameter set")
	}
	if len(bare) == 0 {
		return nil, errors.New("parameter set is empty")
	}
	return bare, nil
}

// LoadFile reads a parameter set from filename.
func LoadFile(filename string) (StateDict, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sd, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}
	return sd, nil
}

// Extract copies the current values of params into a StateDict.
func Extract(params []layers.Param) (StateDict, error) {
	retVal := make(StateDict, len(params))
	for _, p := range params {
		v, ok := p.Node.Value().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("%s holds %T", p.Name, p.Node.Value())
		}
		retVal[p.Name] = v.Clone().(*tensor.Dense)
	}
	return retVal, nil
}

// Apply sets every parameter in params to its value in sd. Every parameter must be
// present with a matching shape; entries of sd that no parameter uses are ignored.
func Apply(sd StateDict, params []layers.Param) error {
	var errs manyErr
	for _, p := range params {
		v, ok := sd[p.Name]
		if !ok {
			errs = append(errs, errors.Errorf("missing parameter %s", p.Name))
			continue
		}
		if !v.Shape().Eq(p.Node.Shape()) {
			errs = append(errs, errors.Errorf("parameter %s has shape %v, expected %v", p.Name, v.Shape(), p.Node.Shape()))
			continue
		}
		if v.Dtype() != layers.Float {
			errs = append(errs, errors.Errorf("parameter %s is %v, expected %v", p.Name, v.Dtype(), layers.Float))
			continue
		}
		if err := G.Let(p.Node, v.Clone().(*tensor.Dense)); err != nil {
			errs = append(errs, errors.Wrapf(err, "setting %s", p.Name))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
