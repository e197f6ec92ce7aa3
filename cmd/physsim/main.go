package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/config"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию PHYSSIM_CONFIG)")
	frames := flag.Int("frames", 0, "число кадров (0: из конфигурации)")
	seed := flag.Int64("seed", 0, "seed генератора (0: из конфигурации)")
	serveMetrics := flag.Bool("metrics", false, "поднять /metrics для Prometheus")
	hold := flag.Bool("hold", false, "после симуляции ждать сигнала (для съёма метрик)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *frames > 0 {
		cfg.Simulation.Frames = *frames
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}

	// Инициализируем систему логирования
	level, err := setupLogging(cfg.Logging)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	manager := logging.GetLoggerManager()
	defer manager.CloseAll()

	logging.Info("🎮 Запуск симулятора столкновений: %d кадров по %d мс", cfg.Simulation.Frames, cfg.Simulation.FrameStepMs)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if *serveMetrics {
		addr := cfg.Metrics.GetAddr()
		go func() {
			logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
			}
		}()
	}

	sim, err := newSimulation(cfg, reg)
	if err != nil {
		logging.Error("❌ Ошибка создания симуляции: %v", err)
		os.Exit(1)
	}
	defer sim.Close()
	// Компонентные логгеры созданы вместе с мирами
	manager.SetAllLevels(level, logging.TRACE)

	if err := sim.setup(); err != nil {
		logging.Error("❌ Ошибка подготовки мира: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	rep := sim.run(ctx)
	elapsed := time.Since(started)

	logging.Info("✅ Симуляция завершена: %d кадров, %d мс игрового времени за %v",
		rep.Frames, rep.SimulatedMs, elapsed.Round(time.Millisecond))
	logging.Info("🏗️ Структур: %d, чанков: %d, в архиве: %d", rep.Structures, rep.Chunks, rep.Archived)
	logging.Info("🎯 Предсказание: снимков %d, коррекций %d, ошибка ср. %.2f / макс. %d px, сброшено отрезков %d",
		rep.Prediction.Snapshots, rep.Prediction.Corrections, rep.Prediction.AvgError,
		rep.Prediction.MaxError, rep.Prediction.DroppedSegments)
	logging.Info("📍 Локальная сущность в %v", rep.LocalPos)

	bench := collectBench(rep.Frames, elapsed)
	logging.Info("📊 %s", bench)

	if *serveMetrics && *hold {
		logging.Info("⏳ Ожидание сигнала завершения...")
		<-ctx.Done()
	}
	logging.Info("👋 Симулятор остановлен")
}

// setupLogging настраивает логгер по умолчанию и каталог компонентных логгеров
func setupLogging(cfg config.LoggingConfig) (logging.LogLevel, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return 0, fmt.Errorf("logging level: %w", err)
	}
	if err := logging.InitDefaultLogger("physsim", cfg.Dir); err != nil {
		return 0, err
	}
	logging.SetDefaultLevel(level)
	logging.GetLoggerManager().SetDirectory(cfg.Dir)
	return level, nil
}
