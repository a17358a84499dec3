//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-yield-backend/config"
	"github.com/fenilmodi00/ipo-yield-backend/database"
	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/services"
)

func main() {
	fmt.Printf("🏥 Return Estimator Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	unified := cfg.ToUnified()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	healthScore := 0
	totalTests := 2

	// Test 1: Dataset export
	fmt.Print("📂 Dataset export: ")
	ingestor := services.NewRecordIngestor(nil)
	var source services.DatasetSource = services.NewJSONFileSource(cfg.DatasetPath, ingestor)
	if cfg.DatasetSource == config.SourceExcel {
		source = services.NewExcelSource(cfg.DatasetPath, ingestor)
	}
	if dataset, err := source.Load(ctx); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Printf("✅ OK (%d records, %d complete, %d dropped rows)\n",
			len(dataset.Records), dataset.CompleteRecordCount(), dataset.DroppedRows)
		healthScore++

		// Test 2: Estimate over the default window
		fmt.Print("🧮 Default estimate: ")
		estimation, err := services.NewEstimationService(staticSnapshot{dataset}, unified, nil)
		if err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			defer estimation.Close()
			start, end, _ := unified.Estimator.WindowBounds()
			request := models.EstimationRequest{
				AUM:          500_000_000,
				RiskFreeRate: unified.Estimator.DefaultRiskFreeRate,
				WindowStart:  start,
				WindowEnd:    end,
			}
			if response, err := estimation.Estimate(ctx, request); err != nil {
				fmt.Printf("❌ FAILED (%v)\n", err)
			} else {
				fmt.Printf("✅ OK (total %.4f%%, %d matched, allocation %d%%)\n",
					response.TotalYield*100, response.MatchedRecordCount, response.RecommendedAllocation)
				healthScore++
			}
		}
	}

	// Test 3: Database
	if cfg.DatabaseURL != "" {
		totalTests++
		fmt.Print("🗄️  Database: ")
		if err := database.Connect(cfg.DatabaseURL); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			count, err := database.NewAllotmentRepository(database.DB).CountRecords(ctx)
			if err != nil {
				fmt.Printf("❌ FAILED (%v)\n", err)
			} else {
				fmt.Printf("✅ OK (%d stored records)\n", count)
				healthScore++
			}
			database.Close()
		}
	}

	// Overall health
	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}

	fmt.Printf("⏰ Check completed at: %s\n", time.Now().Format("15:04:05"))
}

type staticSnapshot struct {
	dataset *models.Dataset
}

func (s staticSnapshot) Snapshot() *models.Dataset {
	return s.dataset
}
