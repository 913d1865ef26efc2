package main

import (
	"context"
	"flag"
	"log"
	"time"

	"buddywalk/simulator"
)

func main() {
	config := simulator.SimConfig{}
	flag.StringVar(&config.EngineURL, "engine", "http://localhost:8080", "engine base URL")
	flag.IntVar(&config.NumUsers, "users", 10, "number of simulated users")
	flag.DurationVar(&config.SimulationTime, "duration", 10*time.Minute, "how long to run")
	flag.Float64Var(&config.MessageFrequency, "messages", 60, "messages per user per hour")
	flag.Float64Var(&config.ReadFrequency, "reads", 30, "inbox checks per user per hour")
	flag.Float64Var(&config.DisconnectRate, "disconnect", 0.01, "per-second chance a user goes offline")
	flag.Float64Var(&config.ReconnectRate, "reconnect", 0.05, "per-second chance an offline user returns")
	flag.Float64Var(&config.ZipfS, "zipf", 1.07, "Zipf skew of partner popularity")
	flag.Parse()

	sim := simulator.NewEnhancedSimulator(config)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	// Log configuration
	log.Printf("Starting simulation with configuration:")
	log.Printf("- Engine URL: %s", config.EngineURL)
	log.Printf("- Number of users: %d", config.NumUsers)
	log.Printf("- Simulation time: %v", config.SimulationTime)
	log.Printf("- Message frequency: %.2f messages/user/hour", config.MessageFrequency)
	log.Printf("- Read frequency: %.2f reads/user/hour", config.ReadFrequency)
	log.Printf("- Disconnect rate: %.2f", config.DisconnectRate)
	log.Printf("- Reconnect rate: %.2f", config.ReconnectRate)
	log.Printf("- Zipf parameter: %.2f", config.ZipfS)

	if err := sim.Run(ctx); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	metrics := sim.GetMetrics()
	log.Printf("Simulation completed. Final metrics:")
	log.Printf("- Total users: %d", metrics.TotalUsers)
	log.Printf("- Active users at end: %d", metrics.ActiveUsers)
	log.Printf("- Messages sent: %d (encrypted: %d)", metrics.MessagesSent, metrics.EncryptedSent)
	log.Printf("- Undecryptable messages seen: %d", metrics.Undecryptable)
	log.Printf("- Error count: %d", metrics.ErrorCount)
}
