package observability

import (
	"os"

	"productservice/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationScopeName = "produits-service.manual"

// NewLogger builds the JSON console logger. With otelBridge set the console core is teed with
// an otelzap core writing to the global OTel logger provider.
func NewLogger(otelBridge bool) *zap.Logger {
	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	if otelBridge {
		otelZapCore := otelzap.NewCore(instrumentationScopeName,
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		)
		core = zapcore.NewTee(otelZapCore, core)
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)
}
