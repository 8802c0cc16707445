package segment

import (
	"github.com/apipatb/earning-sub011/internal/segment/repository"
	"github.com/apipatb/earning-sub011/internal/segment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("segment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
