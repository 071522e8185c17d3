package zone

import "github.com/pkarrdns/pkarrdns/internal/perr"

var errNotImplemented = perr.New(perr.NotImplemented, "zone.Update", nil)
