package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"regexp"
	"sps/src/boot"
	"sps/src/config"
	"sps/src/controllers"
	"sps/src/middlewares"
	"sps/src/utils"
	"strconv"
	"time"

	"github.com/covalenthq/lumberjack/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
)

const (
	apiPrefix string = "/api/v1"
)

var bookableDateValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	datetime, err := time.Parse(config.TIME_PARSE_FORMAT, date)
	if err != nil {
		return false
	}
	if ok {
		// allowance for client/server clock drift
		if time.Now().Add(-5 * time.Minute).After(datetime) {
			return false
		}
	}
	return true
}

var gtfield validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	datetime, err := time.Parse(config.TIME_PARSE_FORMAT, date)
	if err != nil {
		return false
	}
	field := fl.Parent().FieldByName(fl.Param())
	fieldValue := field.Interface().(string)
	fielddatetime, err := time.Parse(config.TIME_PARSE_FORMAT, fieldValue)
	if err != nil {
		return false
	}
	if ok {
		if fielddatetime.After(datetime) {
			return false
		}
	}
	return true
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm := os.Getenv("MAINTENANCE_MODE")
		atoi, err := strconv.ParseBool(mm)
		if err == nil && atoi {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

func publicRoutes(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.
		GET("/share/:filename", func(ctx *gin.Context) {
			apiEnv := os.Getenv("API_ENV")
			if apiEnv != "local" {
				ctx.Status(http.StatusNotFound)
				return
			}
			var params struct {
				Filename string `uri:"filename" binding:"required"`
			}
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			assets := os.Getenv("TEMP_DIR")
			filePath := path.Join(assets, fmt.Sprintf("%s.jpeg", params.Filename))
			log.Printf("filePath: %s", filePath)
			ctx.File(filePath)
		})
	return apiv1
}

func guestAuthRoutes(g *gin.Engine) *gin.RouterGroup {
	auth := apiv1Group(g).Group("/auth")
	auth.Use(middlewares.VerifyIdToken)
	auth.
		POST("/login", func(ctx *gin.Context) {
			token, status, err := controllers.AuthLogin(ctx)
			if err != nil {
				log.Printf("Error on AuthLogin: %s\n", err.Error())
				ctx.JSON(status, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(status, gin.H{"token": token})
		}).
		POST("/register", func(ctx *gin.Context) {
			uid, status, err := controllers.AuthRegister(ctx)
			if err != nil {
				log.Printf("Error on AuthRegister: %s\n", err.Error())
				ctx.JSON(status, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(status, gin.H{"uid": uid})
		})
	return auth
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	if utils.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	initLogger()

	boot.InitDb()
	boot.InitScheduler()
	defer boot.StopScheduler()
	go boot.InitBroker()

	router := setupRouter()

	appHost := os.Getenv("APP_HOST")
	if apiEnv == "local" {
		router.Use(cors.Default())
	} else {
		cc := cors.DefaultConfig()
		cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
		cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization", "X-Request-ID")
		cc.AllowOriginFunc = func(origin string) bool {
			match, _ := regexp.MatchString(appHost, origin)
			if match {
				return true
			}
			match, _ = regexp.MatchString("app:mobile", origin)
			return match
		}
		cc.AllowCredentials = true
		cc.AllowAllOrigins = false
		router.Use(cors.New(cc))
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bookabledate", bookableDateValidatorFunc)
		v.RegisterValidation("gtdate", gtfield)
	}

	router = maintenanceModeMiddleware(router)

	publicRoutes(router)

	guestAuthRoutes(router)

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.AuthMiddleware)
	authorized.Use(middlewares.DedupRequestID)
	{
		lotHandlers(authorized)
		bookingHandlers(authorized)
		gateHandlers(authorized)
		searchHandlers(authorized)
	}

	if os.Getenv("TLS_ENABLE") == "true" {
		cwd, _ := os.Getwd()
		certpath := path.Join(cwd, "certificates", "localhost.pem")
		keypath := path.Join(cwd, "certificates", "localhost-key.pem")
		if err := router.RunTLS(":9090", certpath, keypath); err != nil {
			log.Fatalf("Failed to start server: %s", err)
		}
	}
	if err := router.Run(":9090"); err != nil {
		log.Fatalf("Failed to start server: %s", err)
	}
}
