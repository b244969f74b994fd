// Package docs 由 swag init -g cmd/server/main.go 生成
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/cutoff": {
            "get": {"tags": ["Voucher"], "summary": "截单时间", "responses": {"200": {"description": "OK"}}}
        },
        "/vouchers": {
            "get": {"security": [{"ApiKeyAuth": []}], "tags": ["Voucher"], "summary": "餐券列表", "responses": {"200": {"description": "OK"}}}
        },
        "/vouchers/balance": {
            "get": {"security": [{"ApiKeyAuth": []}], "tags": ["Voucher"], "summary": "餐券余额", "responses": {"200": {"description": "OK"}}}
        },
        "/vouchers/redeem": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Voucher"], "summary": "核销餐券", "responses": {"200": {"description": "OK"}, "409": {"description": "Insufficient vouchers"}}}
        },
        "/vouchers/eligibility": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Voucher"], "summary": "用券资格", "responses": {"200": {"description": "OK"}}}
        },
        "/vouchers/restore": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Voucher"], "summary": "按订单退回餐券", "responses": {"200": {"description": "OK"}}}
        },
        "/vouchers/restore/ids": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Voucher"], "summary": "按券 ID 退回餐券", "responses": {"200": {"description": "OK"}}}
        },
        "/subscriptions/plans": {
            "get": {"tags": ["Subscription"], "summary": "可购买套餐", "responses": {"200": {"description": "OK"}}}
        },
        "/subscriptions": {
            "get": {"security": [{"ApiKeyAuth": []}], "tags": ["Subscription"], "summary": "我的订阅", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Subscription"], "summary": "购买订阅", "responses": {"200": {"description": "OK"}}}
        },
        "/subscriptions/{id}/cancel": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Subscription"], "summary": "取消订阅", "responses": {"200": {"description": "OK"}}}
        },
        "/refunds": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Refund"], "summary": "发起退款", "responses": {"200": {"description": "OK"}, "409": {"description": "Refund in progress"}}}
        },
        "/refunds/{id}": {
            "get": {"security": [{"ApiKeyAuth": []}], "tags": ["Refund"], "summary": "查询退款单", "responses": {"200": {"description": "OK"}}}
        },
        "/admin/refunds": {
            "get": {"security": [{"ApiKeyAuth": []}], "tags": ["Refund"], "summary": "退款列表", "responses": {"200": {"description": "OK"}}}
        },
        "/admin/refunds/{id}/process": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Refund"], "summary": "处理退款", "responses": {"200": {"description": "OK"}}}
        },
        "/admin/refunds/{id}/retry": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Refund"], "summary": "重试退款", "responses": {"200": {"description": "OK"}}}
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Meal Voucher API",
	Description:      "餐券账本与退款结算",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
