package openstack

import "log/slog"

type Config struct {
	Logger *slog.Logger
	// Region of the compute endpoint, OS_REGION_NAME when empty
	Region string
}
