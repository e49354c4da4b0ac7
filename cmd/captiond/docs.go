package main

// General API documentation for swaggo. The registered document lives in
// the docs package; serve it with -tags=swagger.
//
// @title           captiond API
// @version         1.0
// @description     HTTP API for image captioning inference.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
