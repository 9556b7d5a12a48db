// Command seed creates the table where the backend needs it and loads the sample catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rigshop-api/internal/cache"
	"rigshop-api/internal/config"
	"rigshop-api/internal/logger"
	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
	"rigshop-api/internal/service"
	"rigshop-api/internal/store"
)

type seedConfig struct {
	id          string
	name        string
	price       string
	description string
	parts       []model.CompositionEntry
}

var components = []model.Component{
	{ComponentID: "RAM-8GB", Name: "RAM 8GB DDR4", Stock: 50, Price: decimal.RequireFromString("45.00"),
		Specs: map[string]string{"type": "DDR4", "capacity": "8GB", "speed": "3200MHz"}},
	{ComponentID: "RAM-16GB", Name: "RAM 16GB DDR4", Stock: 40, Price: decimal.RequireFromString("75.00"),
		Specs: map[string]string{"type": "DDR4", "capacity": "16GB", "speed": "3600MHz"}},
	{ComponentID: "SSD-512GB", Name: "SSD 512GB NVMe", Stock: 30, Price: decimal.RequireFromString("60.00"),
		Specs: map[string]string{"type": "NVMe", "capacity": "512GB", "speed": "3500MB/s"}},
	{ComponentID: "SSD-1TB", Name: "SSD 1TB NVMe", Stock: 25, Price: decimal.RequireFromString("110.00"),
		Specs: map[string]string{"type": "NVMe", "capacity": "1TB", "speed": "7000MB/s"}},
	{ComponentID: "CPU-I7", Name: "Intel Core i7 12th Gen", Stock: 20, Price: decimal.RequireFromString("320.00"),
		Specs: map[string]string{"cores": "12", "threads": "20", "frequency": "4.9GHz"}},
	{ComponentID: "CPU-I9", Name: "Intel Core i9 13th Gen", Stock: 15, Price: decimal.RequireFromString("480.00"),
		Specs: map[string]string{"cores": "24", "threads": "32", "frequency": "5.8GHz"}},
	{ComponentID: "GPU-RTX3060", Name: "NVIDIA RTX 3060", Stock: 18, Price: decimal.RequireFromString("350.00"),
		Specs: map[string]string{"vram": "12GB", "tdp": "170W"}},
	{ComponentID: "GPU-RTX4070", Name: "NVIDIA RTX 4070", Stock: 12, Price: decimal.RequireFromString("600.00"),
		Specs: map[string]string{"vram": "12GB", "tdp": "200W"}},
	{ComponentID: "MOBO-Z690", Name: "Motherboard Z690", Stock: 25, Price: decimal.RequireFromString("180.00"),
		Specs: map[string]string{"chipset": "Z690", "socket": "LGA1700"}},
	{ComponentID: "PSU-750W", Name: "Power Supply 750W 80+ Gold", Stock: 30, Price: decimal.RequireFromString("95.00"),
		Specs: map[string]string{"wattage": "750W", "efficiency": "80+ Gold"}},
}

func part(id string, qty int) model.CompositionEntry {
	return model.CompositionEntry{ComponentID: id, QuantityPerUnit: qty}
}

var configurations = []seedConfig{
	{"LAPTOP-01", "Developer Laptop", "1299.00", "Everyday laptop for development work",
		[]model.CompositionEntry{part("RAM-8GB", 2), part("SSD-512GB", 1), part("CPU-I7", 1)}},
	{"LAPTOP-GAMING-01", "Gaming Laptop Pro", "1299.00", "High performance gaming laptop with RTX 3060",
		[]model.CompositionEntry{part("RAM-8GB", 2), part("SSD-512GB", 1), part("CPU-I7", 1), part("GPU-RTX3060", 1)}},
	{"LAPTOP-GAMING-02", "Gaming Laptop Ultra", "1899.00", "Premium gaming laptop with RTX 4070 and i9",
		[]model.CompositionEntry{part("RAM-16GB", 2), part("SSD-1TB", 1), part("CPU-I9", 1), part("GPU-RTX4070", 1)}},
	{"WORKSTATION-01", "Workstation Professional", "1599.00", "Workstation for creative professionals",
		[]model.CompositionEntry{part("RAM-16GB", 4), part("SSD-1TB", 2), part("CPU-I7", 1), part("MOBO-Z690", 1), part("PSU-750W", 1)}},
	{"PC-OFFICE-01", "Office PC Basic", "799.00", "Desktop computer for office tasks",
		[]model.CompositionEntry{part("RAM-8GB", 2), part("SSD-512GB", 1), part("CPU-I7", 1), part("MOBO-Z690", 1), part("PSU-750W", 1)}},
}

func main() {
	adminUser := flag.String("admin", "", "also mint a session token for this admin user id (requires Redis)")
	flag.Parse()

	cfg := config.MustLoad()
	log := logger.Must(cfg.App.Environment, cfg.App.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	table, err := store.Open(ctx, &cfg.Store, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer table.Close()

	if err := seed(ctx, repository.NewTableCatalogRepository(table), log); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	if *adminUser != "" {
		token, err := mintAdminToken(ctx, cfg, *adminUser, log)
		if err != nil {
			log.Fatal("failed to mint admin token", zap.Error(err))
		}
		fmt.Printf("X-Token: %s\n", token)
	}
}

// seed writes the sample catalog. Existing entries are overwritten, which also resets stock.
func seed(ctx context.Context, repo repository.CatalogRepository, log *zap.Logger) error {
	now := time.Now().UTC()
	for i := range components {
		c := components[i]
		c.CreatedAt, c.UpdatedAt = now, now
		if err := repo.PutComponent(ctx, &c); err != nil {
			return err
		}
		log.Info("component seeded", zap.String("component_id", c.ComponentID), zap.Int("stock", c.Stock))
	}

	for _, sc := range configurations {
		cfg := &model.Configuration{
			ConfigID:    sc.id,
			Name:        sc.name,
			Price:       decimal.RequireFromString(sc.price),
			Description: sc.description,
			CreatedAt:   now,
		}
		if err := repo.PutConfiguration(ctx, cfg, sc.parts); err != nil {
			return err
		}
		log.Info("configuration seeded", zap.String("config_id", sc.id), zap.Int("components", len(sc.parts)))
	}

	log.Info("catalog seeded", zap.Int("components", len(components)), zap.Int("configurations", len(configurations)))
	return nil
}

func mintAdminToken(ctx context.Context, cfg *config.Config, userID string, log *zap.Logger) (string, error) {
	client, err := cache.NewRedisClient(cache.RedisOptions{
		Addr:     cfg.Cache.RedisAddress(),
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return "", err
	}
	defer client.Close()

	tokens := service.NewTokenService(client, cfg.Auth.SessionTTL, log)
	return tokens.GenerateToken(ctx, model.Principal{UserID: userID, Role: model.RoleAdmin})
}
