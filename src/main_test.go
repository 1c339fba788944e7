package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sps/src/config"
	"sps/src/db"
	"sps/src/types"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type TestSuite struct {
	suite.Suite
	DB   *gorm.DB
	Mock sqlmock.Sqlmock
}

// testAuthMiddleware stands in for the JWT middleware so handler tests do not
// depend on a user row being loadable.
func testAuthMiddleware(role types.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("id", uint(1))
		ctx.Set("uid", "test-uid")
		ctx.Set("email", "someone@example.com")
		ctx.Set("role", string(role))
	}
}

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

func (s *TestSuite) SetupSuite() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bookabledate", bookableDateValidatorFunc)
		v.RegisterValidation("gtdate", gtfield)
	}

	d, mock := NewMockDB()
	db.NewDB(d)
	s.DB = d
	s.Mock = mock

	config.API_QRC_SECRET = hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func (s *TestSuite) TearDownSuite() {
	inner, err := s.DB.DB()
	if err != nil {
		log.Printf("Error accessing inner db instance: %s\n", err.Error())
		return
	}
	inner.Close()
}

const (
	origin = "http://localhost:3000"
)

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	os.Setenv("MAINTENANCE_MODE", "true")
	defer os.Unsetenv("MAINTENANCE_MODE")

	router := setupRouter()
	router = maintenanceModeMiddleware(router)
	apiv1Group(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
}

func (s *TestSuite) TestBookingValidation() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_DRIVER))
	bookingHandlers(apiv1)

	post := func(body any) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		rbytes, err := json.Marshal(body)
		assert.Nil(s.T(), err)
		req, _ := http.NewRequest("POST", "/api/v1/bookings", strings.NewReader(string(rbytes)))
		req.Header.Set("origin", origin)
		router.ServeHTTP(w, req)
		return w
	}

	s.Run("Should reject a booking with missing fields", func() {
		w := post(map[string]any{"lot": 1})
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should reject a booking shorter than an hour", func() {
		start := time.Now().Add(2 * time.Hour)
		w := post(types.CreateBookingRequestBody{
			LotID:     1,
			StartTime: start.Format(config.TIME_PARSE_FORMAT),
			EndTime:   start.Add(30 * time.Minute).Format(config.TIME_PARSE_FORMAT),
			IsAdvance: true,
		})
		assert.Equal(s.T(), 400, w.Code)
		rbytes, err := io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		errMsg := gjson.Get(string(rbytes), "error").String()
		assert.Contains(s.T(), errMsg, "at least 1 hour")
	})

	s.Run("Should reject a booking longer than a day", func() {
		start := time.Now().Add(2 * time.Hour)
		w := post(types.CreateBookingRequestBody{
			LotID:     1,
			StartTime: start.Format(config.TIME_PARSE_FORMAT),
			EndTime:   start.Add(25 * time.Hour).Format(config.TIME_PARSE_FORMAT),
			IsAdvance: true,
		})
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should reject an advance booking starting in the past", func() {
		start := time.Now().Add(-10 * time.Minute)
		w := post(types.CreateBookingRequestBody{
			LotID:     1,
			StartTime: start.Format(config.TIME_PARSE_FORMAT),
			EndTime:   start.Add(2 * time.Hour).Format(config.TIME_PARSE_FORMAT),
			IsAdvance: true,
		})
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should reject an advance booking beyond the horizon", func() {
		start := time.Now().Add(8 * 24 * time.Hour)
		w := post(types.CreateBookingRequestBody{
			LotID:     1,
			StartTime: start.Format(config.TIME_PARSE_FORMAT),
			EndTime:   start.Add(2 * time.Hour).Format(config.TIME_PARSE_FORMAT),
			IsAdvance: true,
		})
		assert.Equal(s.T(), 400, w.Code)
	})
}

func (s *TestSuite) TestGateRoutes() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_AUTHORITY))
	gateHandlers(apiv1)

	s.Run("Should reject a scan without a code", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/gate/entry", strings.NewReader("{}"))
		req.Header.Set("origin", origin)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should reject an undecodable pass", func() {
		w := httptest.NewRecorder()
		body, _ := json.Marshal(types.ScanRequestBody{Code: "not-a-pass"})
		req, _ := http.NewRequest("POST", "/api/v1/gate/entry", strings.NewReader(string(body)))
		req.Header.Set("origin", origin)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 400, w.Code)
	})
}

func (s *TestSuite) TestGateRequiresAuthority() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_DRIVER))
	gateHandlers(apiv1)

	w := httptest.NewRecorder()
	body, _ := json.Marshal(types.ScanRequestBody{Code: "whatever"})
	req, _ := http.NewRequest("POST", "/api/v1/gate/exit", strings.NewReader(string(body)))
	req.Header.Set("origin", origin)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 403, w.Code)
}

func (s *TestSuite) TestLotAvailability() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_DRIVER))
	lotHandlers(apiv1)

	rows := sqlmock.NewRows([]string{"id", "total_spots", "available_spots"}).
		AddRow(3, 10, 7)
	s.Mock.ExpectQuery(`SELECT (.+) FROM "lots"`).WillReturnRows(rows)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/lots/3/availability", nil)
	req.Header.Set("origin", origin)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	sjson := string(rbytes)
	assert.Equal(s.T(), int64(7), gjson.Get(sjson, "data.available_spots").Int())
	assert.Equal(s.T(), int64(10), gjson.Get(sjson, "data.total_spots").Int())
}

func (s *TestSuite) TestLotCreateRequiresAuthority() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_DRIVER))
	lotHandlers(apiv1)

	w := httptest.NewRecorder()
	body, _ := json.Marshal(types.CreateLotRequestBody{
		Name:         "Central Lot",
		Address:      "1 Main St",
		Latitude:     14.5995,
		Longitude:    120.9842,
		TotalSpots:   25,
		PricePerHour: 2.5,
	})
	req, _ := http.NewRequest("POST", "/api/v1/lots", strings.NewReader(string(body)))
	req.Header.Set("origin", origin)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 403, w.Code)
}

func (s *TestSuite) TestLotCreateValidation() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_AUTHORITY))
	lotHandlers(apiv1)

	w := httptest.NewRecorder()
	body, _ := json.Marshal(types.CreateLotRequestBody{
		Name:         "Central Lot",
		Address:      "1 Main St",
		Latitude:     14.5995,
		Longitude:    120.9842,
		TotalSpots:   25,
		PricePerHour: 2.5,
		Rating:       9,
	})
	req, _ := http.NewRequest("POST", "/api/v1/lots", strings.NewReader(string(body)))
	req.Header.Set("origin", origin)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
}

func (s *TestSuite) TestLotSpotAdjustmentValidation() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(testAuthMiddleware(types.ROLE_AUTHORITY))
	lotHandlers(apiv1)

	w := httptest.NewRecorder()
	body := fmt.Sprintf(`{"delta": %d}`, 5)
	req, _ := http.NewRequest("PATCH", "/api/v1/lots/3/spots", strings.NewReader(body))
	req.Header.Set("origin", origin)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
