package server

import (
	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/visibility"
)

// visibleValues drops values of fields hidden by their visibility rule.
// Keys that name no field are kept so validation can report them.
func visibleValues(form model.FormModel, values model.FormValues) model.FormValues {
	out := model.FormValues{}
	for id, v := range values {
		field, ok := form.FieldByID(id)
		if ok && (field.IsLayout() || !visibility.IsVisible(field, values, nil)) {
			continue
		}
		out[id] = v
	}
	return out
}

type rejection struct {
	conflict bool
	message  string
	fields   map[string]string
}

func directoryRejection(err error) (rejection, bool) {
	rej, ok := directory.AsRejection(err)
	if !ok {
		return rejection{}, false
	}
	return rejection{
		conflict: rej.Kind == directory.RejectionConflict,
		message:  rej.Message,
		fields:   rej.Fields,
	}, true
}
