package rest

import (
	"encoding/binary"
	"net/http"
	"strconv"
	"sync"

	"github.com/darkdragonsastro/lost/internal/camera"
	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/geometry"
	"github.com/darkdragonsastro/lost/internal/multidb"
	"github.com/darkdragonsastro/lost/internal/pairdb"
	"github.com/darkdragonsastro/lost/internal/pipeline"
	"github.com/darkdragonsastro/lost/internal/starid"
	"github.com/gin-gonic/gin"
)

// Config holds server configuration
type Config struct {
	Address string
	Debug   bool
}

// Server holds the HTTP server and its dependencies
type Server struct {
	router  *gin.Engine
	driver  *pipeline.Driver
	catalog catalog.Catalog

	// database is the last MultiDatabase buffer produced by BuildDatabase,
	// kept in memory so /solve can be called without re-uploading it.
	// Guarded by mu: gin serves handlers concurrently and a /solve can
	// race a /database/build.
	mu       sync.RWMutex
	database []byte
}

// NewServer creates a new HTTP server around a pipeline driver and the
// catalog it was configured to serve.
func NewServer(cfg Config, driver *pipeline.Driver, cat catalog.Catalog) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:  gin.New(),
		driver:  driver,
		catalog: cat,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/health", s.healthCheck)

	dbGroup := api.Group("/database")
	{
		dbGroup.POST("/build", s.buildDatabase)
		dbGroup.GET("/current", s.getCurrentDatabase)
	}

	catalogGroup := api.Group("/catalog")
	{
		catalogGroup.GET("/stars/:index/distances", s.starDistances)
	}

	solveGroup := api.Group("/solve")
	{
		solveGroup.POST("", s.solve)
		solveGroup.POST("/compare", s.compare)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck returns server health status
func (s *Server) healthCheck(c *gin.Context) {
	health := s.driver.Health()
	c.JSON(http.StatusOK, gin.H{
		"status":  health.Status,
		"message": health.Message,
	})
}

// buildDatabase narrows the server's catalog and assembles a
// MultiDatabase, caching the result for subsequent /solve calls.
func (s *Server) buildDatabase(c *gin.Context) {
	buf, err := s.driver.BuildDatabase(c.Request.Context(), s.catalog)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.database = buf
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"size_bytes": len(buf)})
}

// currentDatabase returns the cached build result, or nil if none exists.
func (s *Server) currentDatabase() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.database
}

// getCurrentDatabase returns the raw bytes of the last database built by
// this server, for a client that wants to persist it.
func (s *Server) getCurrentDatabase(c *gin.Context) {
	buf := s.currentDatabase()
	if buf == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no database has been built yet"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", buf)
}

// solveRequest is the JSON body for POST /solve: a list of detected
// centroid pixel positions plus the camera that produced them.
type solveRequest struct {
	Centroids []struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"centroids"`
	FovRadians  float64 `json:"fov_radians"`
	XResolution float64 `json:"x_resolution"`
	YResolution float64 `json:"y_resolution"`
}

// solveResponse mirrors pipeline.SolveResult in wire-friendly form.
type solveResponse struct {
	Identifications []starid.StarIdentifier `json:"identifications"`
	Quaternion      *[4]float64             `json:"quaternion,omitempty"`
}

func (s *Server) solve(c *gin.Context) {
	dbBuf := s.currentDatabase()
	if dbBuf == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no database built; call /database/build first"})
		return
	}

	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cam := camera.New(req.FovRadians, req.XResolution, req.YResolution)
	centroids := make([]starid.Centroid, len(req.Centroids))
	for i, cp := range req.Centroids {
		centroids[i] = starid.Centroid{Position: geometry.Vec2{X: cp.X, Y: cp.Y}}
	}

	result, err := s.driver.Solve(c.Request.Context(), centroids, cam, dbBuf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := solveResponse{Identifications: result.Identifications}
	if result.HasAttitude {
		q := result.Attitude.Quaternion
		quat := [4]float64{q.W, q.X, q.Y, q.Z}
		resp.Quaternion = &quat
	}
	c.JSON(http.StatusOK, resp)
}

// starDistances is a read-only diagnostic: the angular distance from one
// catalog star to every other star it is paired with in the currently
// built pair-distance database. The index is into the narrowed catalog
// stored in the database, not the server's input catalog. Requires
// /database/build to have run.
func (s *Server) starDistances(c *gin.Context) {
	dbBuf := s.currentDatabase()
	if dbBuf == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no database built; call /database/build first"})
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index > 0x7FFF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative int16"})
		return
	}

	mdb, err := multidb.Parse(dbBuf, multidb.DefaultMaxSubDatabases, byteOrder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cat, err := pipeline.DatabaseCatalog(mdb, byteOrder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	pairBuf, err := mdb.SubDatabase(pairdb.MagicValue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	pairDB, err := pairdb.Parse(pairBuf, byteOrder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if index >= len(cat) {
		c.JSON(http.StatusNotFound, gin.H{"error": "index beyond the narrowed catalog"})
		return
	}

	distances := pairDB.StarDistances(int16(index), cat)
	c.JSON(http.StatusOK, gin.H{"star_index": index, "distances": distances})
}

// compareRequest carries two identification sets to score against one
// another: what the solver produced, and an externally known truth.
type compareRequest struct {
	Got   []starid.StarIdentifier `json:"got"`
	Truth []starid.StarIdentifier `json:"truth"`
}

func (s *Server) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pipeline.Compare(req.Got, req.Truth))
}

// byteOrder is the wire endianness used across every binary payload this
// server produces or consumes.
var byteOrder = binary.LittleEndian
