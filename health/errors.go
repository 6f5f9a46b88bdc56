package health

import "errors"

var errAllSourcesFailed = errors.New("health: all combined sources failed")
