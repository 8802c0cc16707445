package customer

import (
	"github.com/apipatb/earning-sub011/internal/customer/repository"
	"github.com/apipatb/earning-sub011/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
