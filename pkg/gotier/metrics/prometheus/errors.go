package prommetrics

import (
	"errors"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

func isNotFound(err error) bool {
	return errors.Is(err, gotier.ErrNotFound)
}
