package simulator

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"buddywalk/internal/client"

	"github.com/google/uuid"
)

type SimConfig struct {
	NumUsers       int
	SimulationTime time.Duration
	// MessageFrequency and ReadFrequency are per user per hour.
	MessageFrequency float64
	ReadFrequency    float64
	DisconnectRate   float64
	ReconnectRate    float64
	// ZipfS skews partner choice towards a few popular users.
	ZipfS        float64
	EngineURL    string
	MetricsEvery time.Duration
	HTTPClient   *http.Client
}

type SimulationStats struct {
	mu                sync.RWMutex
	StartTime         time.Time
	TotalRequests     int64
	SuccessRequests   int64
	FailedRequests    int64
	AverageLatency    time.Duration
	ActiveUsers       int
	MessagesSent      int
	EncryptedSent     int
	ConversationsRead int
	Undecryptable     int
}

// Track simulated users with their device state
type SimulatedUser struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Password    string
	IsConnected bool
	LastActive  time.Time
	device      *client.Orchestrator
	api         *client.API
}

type EnhancedSimulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	mu     sync.RWMutex
	rng    *rand.Rand
	rngMu  sync.Mutex
}

func NewEnhancedSimulator(config SimConfig) *EnhancedSimulator {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if config.MetricsEvery <= 0 {
		config.MetricsEvery = 10 * time.Second
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &EnhancedSimulator{
		config: config,
		stats: &SimulationStats{
			StartTime: time.Now(),
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *EnhancedSimulator) Run(ctx context.Context) error {
	log.Printf("Starting enhanced simulation...")

	if err := s.createInitialUsers(ctx); err != nil {
		return fmt.Errorf("initialization failed: %v", err)
	}
	if len(s.users) < 2 {
		return fmt.Errorf("initialization failed: need at least 2 users, have %d", len(s.users))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()

	// Simulate connection states
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()

	// Collect metrics
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

func (s *EnhancedSimulator) createInitialUsers(ctx context.Context) error {
	log.Printf("Creating %d users...", s.config.NumUsers)

	// Key wrapping and bcrypt make signup slow; a few workers are enough.
	numWorkers := 4
	userJobs := make(chan int)
	results := make(chan *SimulatedUser)
	runID := uuid.NewString()[:8]

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for userNum := range userJobs {
				user := &SimulatedUser{
					Name:     fmt.Sprintf("user_%d", userNum),
					Email:    fmt.Sprintf("user_%d_%s@test.com", userNum, runID),
					Password: "testpass123",
				}

				// Implement exponential backoff for retries
				var err error
				for retries := 0; retries < 3; retries++ {
					if err = s.registerUser(ctx, user); err == nil {
						results <- user
						break
					}
					if ctx.Err() != nil {
						return
					}
					backoffDuration := time.Duration(math.Pow(2, float64(retries))) * 100 * time.Millisecond
					log.Printf("Worker %d: Retry %d for user %s after %v delay",
						workerID, retries+1, user.Name, backoffDuration)
					time.Sleep(backoffDuration)
				}
				if err != nil {
					log.Printf("Worker %d: Failed to register user %s after retries: %v",
						workerID, user.Name, err)
				}
			}
		}(i)
	}

	go func() {
		defer close(userJobs)
		for i := 0; i < s.config.NumUsers; i++ {
			select {
			case userJobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make([]*SimulatedUser, 0, s.config.NumUsers)
	for user := range results {
		s.users = append(s.users, user)
	}

	s.stats.mu.Lock()
	s.stats.ActiveUsers = len(s.users)
	s.stats.mu.Unlock()

	log.Printf("Successfully created %d users", len(s.users))
	return ctx.Err()
}

func (s *EnhancedSimulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	api := client.NewAPI(s.config.EngineURL, s.config.HTTPClient)
	device := client.NewOrchestrator(api, client.NewMemoryKeyStore())

	start := time.Now()
	err := device.Register(ctx, client.SignupInput{
		Name:     user.Name,
		DogName:  "dog_of_" + user.Name,
		Email:    user.Email,
		Password: user.Password,
	})
	s.recordRequestMetrics(start, err)
	if err != nil {
		return fmt.Errorf("failed to register user: %v", err)
	}

	user.ID = device.UserID()
	user.device = device
	user.api = api
	user.IsConnected = true
	user.LastActive = time.Now()
	return nil
}

// getZipfNumber returns an index in [0, max) skewed towards 0.
func (s *EnhancedSimulator) getZipfNumber(max int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if max <= 1 {
		return 0
	}
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(max-1))
	return int(zipf.Uint64())
}

func (s *EnhancedSimulator) float64() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *EnhancedSimulator) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func (s *EnhancedSimulator) simulateConnectivity(ctx context.Context) {
	log.Printf("Starting connectivity simulation...")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			active := 0
			for _, user := range s.users {
				if user.IsConnected {
					if s.float64() < s.config.DisconnectRate {
						user.IsConnected = false
					}
				} else if s.float64() < s.config.ReconnectRate {
					user.IsConnected = true
				}
				if user.IsConnected {
					active++
				}
			}
			s.mu.Unlock()

			s.stats.mu.Lock()
			s.stats.ActiveUsers = active
			s.stats.mu.Unlock()
		}
	}
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	log.Printf("Starting metrics collection...")
	ticker := time.NewTicker(s.config.MetricsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			log.Printf("Simulation Metrics (%.1f seconds elapsed):", time.Since(s.stats.StartTime).Seconds())
			log.Printf("- Request Rate: %.2f req/sec", m.RequestsPerSecond)
			log.Printf("- Average Latency: %v", m.AverageLatency)
			log.Printf("- Active Users: %d/%d", m.ActiveUsers, m.TotalUsers)
			log.Printf("- Messages Sent: %d (encrypted: %d)", m.MessagesSent, m.EncryptedSent)
			log.Printf("- Conversations Read: %d (undecryptable messages: %d)", m.ConversationsRead, m.Undecryptable)
			log.Printf("- Failed Requests: %d", m.ErrorCount)
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	MessagesSent      int
	EncryptedSent     int
	ConversationsRead int
	Undecryptable     int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	totalUsers := len(s.users)
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)
	return SimulationMetrics{
		TotalUsers:        totalUsers,
		ActiveUsers:       s.stats.ActiveUsers,
		MessagesSent:      s.stats.MessagesSent,
		EncryptedSent:     s.stats.EncryptedSent,
		ConversationsRead: s.stats.ConversationsRead,
		Undecryptable:     s.stats.Undecryptable,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
