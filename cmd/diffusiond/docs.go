package main

// General API documentation for swaggo. The httpapi package serves the
// document when built with -tags=swagger.
//
// @title           diffusiond API
// @version         1.0
// @description     Tiled diffusion sampling scheduler: sample, schedule and tile-plan endpoints.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
